package renderer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sfclive/internal/component"
	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/sanitizer"
	"github.com/conneroisu/sfclive/internal/scoping"
	"github.com/conneroisu/sfclive/internal/styles"
	"github.com/conneroisu/sfclive/internal/trace"
	"github.com/conneroisu/sfclive/internal/vdom"
)

const helloSource = `<template>
  <div class="hello"><p>{{ msg }}</p></div>
</template>
<script>
export default { data() { return { msg: "hi" } } }
</script>
<style>.hello { color: red; }</style>`

const counterSource = `<template>
<div class="counter">
  <span>{{ label }}: {{ count }}</span>
  <button @click="inc">+</button>
</div>
</template>
<script>
export default {
  name: "Counter",
  props: { label: { type: String, default: "count" } },
  data() { return { count: 0 } },
  methods: {
    inc() {
      this.count++
      this.$emit("changed", this.count)
    },
  },
}
</script>
<style>
.counter span { font-weight: bold; }
button:hover { color: blue; }
</style>`

type fixture struct {
	renderer *ComponentRenderer
	surface  *vdom.MemorySurface
	registry *styles.MemoryRegistry
	recorder *trace.Recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		surface:  vdom.NewMemorySurface(),
		registry: styles.NewMemoryRegistry(),
		recorder: trace.NewRecorder(),
	}

	tokens := 0
	opts = append([]Option{
		WithSink(f.recorder),
		WithTokenGenerator(func() scoping.Token {
			tokens++
			return scoping.Token(fmt.Sprintf("data-v-t%d", tokens))
		}),
	}, opts...)

	f.renderer = New(f.surface, f.registry, opts...)
	return f
}

// snapshot renders events without timestamps, one detail line per row.
func snapshot(events []trace.Event) []byte {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "%d %s %s", e.Seq, e.Status, e.Stage)
		if e.Done {
			b.WriteString(" (done)")
		}
		b.WriteByte('\n')
		for _, d := range e.Detail {
			for _, line := range strings.Split(d, "\n") {
				b.WriteString(strings.TrimRight("    "+line, " "))
				b.WriteByte('\n')
			}
		}
	}
	return []byte(b.String())
}

func TestRenderTraceGolden(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"render_success", helloSource},
		{"render_blocked_tag", `<template><div><SCRIPT>alert(1)</SCRIPT></div></template>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_ = f.renderer.Render(context.Background(), tt.source, Options{})

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, tt.name, snapshot(f.recorder.Events()))
		})
	}
}

func TestRenderStageOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.Render(context.Background(), counterSource, Options{}))

	assert.Equal(t, []string{
		StageCreateRenderer,
		StageStarted,
		StageSourceReceived,
		StageDestroy,
		StageToken,
		StageSplitTemplate,
		StageSplitScript,
		StageSplitStyle,
		StageCheckTags,
		StageCheckDirectives,
		StageCheckEvents,
		StageScopeTemplate,
		StageScopeStyle,
		StageCompile,
		StageCompile,
		StageEvaluate,
		StageEvaluate,
		StageConstructor,
		StageInstantiate,
		StageAttachProps,
		StageBindEvents,
		StageMount,
		StageComplete,
	}, f.recorder.Stages())

	last, ok := f.recorder.Last()
	require.True(t, ok)
	assert.True(t, last.Done)
	assert.Equal(t, trace.StatusSuccess, last.Status)
}

func TestRenderMountsScopedComponent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.Render(context.Background(), helloSource, Options{}))

	assert.Equal(t, `<div data-v-t1="" class="hello"><p>hi</p></div>`, f.surface.Contents())
	assert.Equal(t, scoping.Token("data-v-t1"), f.renderer.ScopeToken())
	assert.Equal(t, []styles.Record{{ID: "data-v-t1", CSS: "[data-v-t1]{.hello { color: red; }}"}}, f.registry.Sheets())

	assert.Equal(t, helloSource, f.renderer.Source())
	assert.Equal(t, `<div class="hello"><p>{{ msg }}</p></div>`, f.renderer.OriginStructure().Template)
	assert.Equal(t, `<div class="hello" data-v-t1=""><p>{{ msg }}</p></div>`, f.renderer.Structure().Template)
	assert.Equal(t, ".hello { color: red; }", f.renderer.OriginStructure().Style)

	require.NotNil(t, f.renderer.Description())
	assert.Equal(t, "div", f.renderer.Description().Root)
	require.NotNil(t, f.renderer.Instance())
	assert.Equal(t, "anonymous", f.renderer.Instance().Name())
}

func TestRenderSelectorStrategy(t *testing.T) {
	f := newFixture(t, WithStrategy(scoping.StrategySelector))
	require.NoError(t, f.renderer.Render(context.Background(), counterSource, Options{}))

	css := f.registry.CSS()
	assert.Contains(t, css, ".counter span[data-v-t1] { font-weight: bold; }")
	assert.Contains(t, css, "button[data-v-t1] :hover { color: blue; }")
}

func TestRenderReplacesPreviousInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.renderer.Render(ctx, helloSource, Options{}))
	first := f.renderer.Instance()
	require.NoError(t, f.renderer.Render(ctx, counterSource, Options{}))

	assert.NotSame(t, first, f.renderer.Instance())
	assert.Nil(t, first.Tree(), "previous instance destroyed")
	assert.Equal(t, 1, f.registry.Len())
	_, ok := f.registry.Get("data-v-t1")
	assert.False(t, ok)
	_, ok = f.registry.Get("data-v-t2")
	assert.True(t, ok)
	assert.Contains(t, f.surface.Contents(), "count: 0")
}

func TestRenderPropsAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var changed []any
	err := f.renderer.Render(ctx, counterSource, Options{
		Props: map[string]any{"label": "clicks"},
		Events: map[string]component.EventHandler{
			"changed": func(args ...any) { changed = append(changed, args[0]) },
		},
	})
	require.NoError(t, err)
	assert.Contains(t, f.surface.Contents(), "<span>clicks: 0</span>")

	require.NoError(t, f.renderer.Dispatch(ctx, []int{1}, "click", nil))
	require.NoError(t, f.renderer.Dispatch(ctx, []int{1}, "click", nil))

	assert.Contains(t, f.surface.Contents(), "<span>clicks: 2</span>")
	assert.Equal(t, []any{int64(1), int64(2)}, changed)
}

func TestRenderFailureLeavesSurfaceEmpty(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		stage string
		cause error
	}{
		{
			name:  "blocked tag",
			src:   `<template><div><iframe src="x"></iframe></div></template>`,
			stage: StageCheckTags,
			cause: errors.ErrTemplateSecurityViolation,
		},
		{
			name:  "blocked directive",
			src:   `<template><div V-HTML="raw"></div></template>`,
			stage: StageCheckDirectives,
			cause: errors.ErrTemplateSecurityViolation,
		},
		{
			name:  "multiple roots",
			src:   `<template><p>a</p><p>b</p></template>`,
			stage: StageScopeTemplate,
			cause: errors.ErrTemplateRootMissing,
		},
		{
			name:  "missing template",
			src:   `<script>export default {}</script>`,
			stage: StageScopeTemplate,
			cause: errors.ErrTemplateRootMissing,
		},
		{
			name:  "bad expression",
			src:   `<template><p>{{ a + }}</p></template>`,
			stage: StageCompile,
			cause: errors.ErrTemplateCompile,
		},
		{
			name:  "bad script",
			src:   `<template><p>x</p></template><script>export default { data() { return</script>`,
			stage: StageEvaluate,
			cause: errors.ErrScriptEvaluation,
		},
		{
			name:  "data throws",
			src:   `<template><p>x</p></template><script>export default { data() { throw new Error("no") } }</script>`,
			stage: StageInstantiate,
			cause: errors.ErrInstance,
		},
		{
			name:  "render throws",
			src:   `<template><p>{{ nope.deeper }}</p></template>`,
			stage: StageMount,
			cause: errors.ErrInstance,
		},
		{
			name:  "mounted hook throws",
			src:   `<template><p>x</p></template><script>export default { mounted() { throw new Error("late") } }</script><style>p { color: red; }</style>`,
			stage: StageMount,
			cause: errors.ErrInstance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			require.NoError(t, f.renderer.Render(ctx, helloSource, Options{}))
			f.recorder.Reset()

			err := f.renderer.Render(ctx, tt.src, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrRenderFailure)
			assert.ErrorIs(t, err, tt.cause)

			root := errors.Root(err)
			require.NotNil(t, root)

			var failure *errors.SFCError
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.stage, failure.Stage)

			assert.True(t, f.surface.Empty())
			assert.Zero(t, f.registry.Len())
			assert.Nil(t, f.renderer.Instance())

			last, ok := f.recorder.Last()
			require.True(t, ok)
			assert.Equal(t, StageFailed, last.Stage)
			assert.Equal(t, trace.StatusDanger, last.Status)
			assert.True(t, last.Done)

			danger := 0
			for _, e := range f.recorder.Events() {
				if e.Status == trace.StatusDanger {
					danger++
				}
			}
			assert.Equal(t, 1, danger)
		})
	}
}

func TestMountedHookFailureTearsDownMountedTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := `<template><div class="late"><p>{{ msg }}</p></div></template>
<script>
export default {
  data() { return { msg: "mounted" } },
  mounted() { throw new Error("late failure") },
}
</script>
<style>.late { color: red; }</style>`

	err := f.renderer.Render(ctx, src, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInstance)
	assert.Contains(t, err.Error(), "late failure")

	// The tree reached the surface before the hook ran.
	assert.Equal(t, 1, f.surface.Mounts())
	assert.True(t, f.surface.Empty())
	assert.Empty(t, f.surface.Contents())
	assert.Zero(t, f.registry.Len())
	assert.Nil(t, f.renderer.Instance())

	// The renderer stays usable after the teardown.
	require.NoError(t, f.renderer.Render(ctx, helloSource, Options{}))
	assert.Contains(t, f.surface.Contents(), "<p>hi</p>")
	assert.Equal(t, 1, f.registry.Len())
}

func TestFailedRenderDropsPreviousDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.renderer.Render(ctx, helloSource, Options{}))
	require.NotNil(t, f.renderer.Description())

	blocked := `<template><div><iframe></iframe></div></template>`
	require.Error(t, f.renderer.Render(ctx, blocked, Options{}))

	assert.Equal(t, blocked, f.renderer.Source())
	assert.Equal(t, scoping.Token("data-v-t2"), f.renderer.ScopeToken())
	assert.Nil(t, f.renderer.Description())

	bad := `<template><p>x</p></template><script>export default { data() { return</script>`
	require.Error(t, f.renderer.Render(ctx, bad, Options{}))
	desc := f.renderer.Description()
	require.NotNil(t, desc)
	assert.Contains(t, desc.Render, "data-v-t3")
}

func TestRenderCustomPolicy(t *testing.T) {
	policy := sanitizer.DefaultPolicy().Merge(sanitizer.Policy{BlockedEvents: []string{"submit"}})
	f := newFixture(t, WithPolicy(policy))

	err := f.renderer.Render(context.Background(),
		`<template><form @submit="go"></form></template><script>export default { methods: { go() {} } }</script>`,
		Options{})
	assert.ErrorIs(t, err, errors.ErrTemplateSecurityViolation)

	var failure *errors.SFCError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageCheckEvents, failure.Stage)
}

func TestDestroyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.Render(context.Background(), helloSource, Options{}))
	f.recorder.Reset()

	f.renderer.Destroy()
	f.renderer.Destroy()

	assert.True(t, f.surface.Empty())
	assert.Zero(t, f.registry.Len())
	assert.Nil(t, f.renderer.Instance())
	assert.Equal(t, []string{StageDestroy, StageDestroy}, f.recorder.Stages())

	events := f.recorder.Events()
	assert.Equal(t, []string{"anonymous"}, events[0].Detail)
	assert.Equal(t, []string{"no instance mounted"}, events[1].Detail)
}

func TestDispatchWithoutInstance(t *testing.T) {
	f := newFixture(t)

	err := f.renderer.Dispatch(context.Background(), []int{0}, "click", nil)
	assert.ErrorIs(t, err, errors.ErrInstance)
}

func TestNewDefaults(t *testing.T) {
	r := New(nil, nil)

	require.NotNil(t, r.Surface())
	assert.Empty(t, r.Surface().Contents())
	require.NoError(t, r.Render(context.Background(), helloSource, Options{}))
	assert.True(t, r.ScopeToken().Valid())
	assert.Contains(t, r.Surface().Contents(), "<p>hi</p>")
}

func TestConcurrentRenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- f.renderer.Render(ctx, counterSource, Options{})
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	assert.Equal(t, 1, f.registry.Len())
	assert.NotNil(t, f.renderer.Instance())
	assert.Contains(t, f.surface.Contents(), "count: 0")
}
