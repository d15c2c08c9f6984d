// Package validation guards the places where outside input reaches the file
// system or the network: source paths given to the CLI and watcher, and the
// origins of websocket clients.
package validation

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// SourceExtension is the extension of single-file component sources.
const SourceExtension = ".vue"

// MaxSourceSize bounds the size of a source file read from disk.
const MaxSourceSize = 1 << 20

var restrictedPaths = []string{
	"/etc/",
	"/proc/",
	"/sys/",
	"/dev/",
	"/boot/",
}

var pathDangerousChars = []string{";", "&", "|", "$", "`", "<", ">", "\x00"}

// ValidatePath validates a file path to prevent path traversal attacks.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	for _, char := range pathDangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %q", char)
		}
	}

	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}

	lower := strings.ToLower(filepath.ToSlash(cleanPath))
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(lower, restricted) || lower == strings.TrimSuffix(restricted, "/") {
			return fmt.Errorf("access to restricted path denied: %s", path)
		}
	}

	return nil
}

// ValidateFileExtension validates file extensions against an allowlist.
func ValidateFileExtension(filename string, allowedExtensions []string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return fmt.Errorf("file must have an extension")
	}

	for _, allowed := range allowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}

	return fmt.Errorf("file extension '%s' is not allowed", ext)
}

// ValidateSourceFile checks that path names a readable component source of
// acceptable size.
func ValidateSourceFile(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ValidateFileExtension(path, []string{SourceExtension}); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat source: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxSourceSize {
		return fmt.Errorf("source is %d bytes, limit is %d", info.Size(), MaxSourceSize)
	}
	return nil
}

// ReadSource validates path and returns its contents.
func ReadSource(path string) (string, error) {
	if err := ValidateSourceFile(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ValidateOrigin validates WebSocket origin for CSRF protection
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}
