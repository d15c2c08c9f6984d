// Package cmd provides the command-line interface for sfclive.
//
// This package implements the CLI commands using the Cobra framework. Every
// command reads the same Viper-backed configuration and logs through the
// structured logger configured by the logging section.
//
// # Available Commands
//
//   - render: Run the pipeline once on a .vue file and print the result
//   - serve: Start the preview server with websocket trace streaming
//   - watch: Re-render a .vue file whenever it changes
//   - config show: Print the effective configuration as YAML
//   - version: Show build information
//
// # Command Examples
//
//	// Render a component and print the trace
//	sfclive render Hello.vue --output trace
//
//	// Render with props and pace the trace like the preview UI
//	sfclive render Counter.vue --props '{"label":"clicks"}' --pace
//
//	// Serve the preview and follow a file
//	sfclive serve --port 3000 --watch Hello.vue
package cmd
