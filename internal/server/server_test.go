package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sfclive/internal/config"
	"github.com/conneroisu/sfclive/internal/renderer"
	"github.com/conneroisu/sfclive/internal/scoping"
	"github.com/conneroisu/sfclive/internal/trace"
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
</script>`

const blockedSource = `<template><div><script>alert(1)</script></div></template>`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *PreviewServer {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	opts = append([]Option{
		WithRendererOptions(renderer.WithTokenGenerator(func() scoping.Token { return "data-v-test" })),
	}, opts...)

	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNew(t *testing.T) {
	s := newTestServer(t, nil)

	assert.NotNil(t, s.renderer)
	assert.NotNil(t, s.hub)
	assert.Nil(t, s.pacer)

	cfg := testConfig()
	cfg.Scheduler.Enabled = true
	paced := newTestServer(t, cfg)
	require.NotNil(t, paced.pacer)
	lo, hi := paced.pacer.Bounds()
	assert.Equal(t, time.Second, lo)
	assert.Equal(t, 3*time.Second, hi)

	_, err := New(nil)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	s := newTestServer(t, nil)

	result := s.Render(context.Background(), RenderRequest{Source: helloSource})
	require.Nil(t, result.Error)

	assert.Equal(t, `<div data-v-test="" class="hello"><p>hi</p></div>`, result.HTML)
	assert.Equal(t, "[data-v-test]{.hello { color: red; }}", result.CSS)
	assert.Equal(t, "data-v-test", result.ScopeToken)

	require.NotEmpty(t, result.Trace)
	assert.Equal(t, renderer.StageStarted, result.Trace[0].Stage)
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, renderer.StageComplete, last.Stage)
	assert.True(t, last.Done)
	for i, e := range result.Trace {
		assert.Equal(t, trace.StatusSuccess, e.Status, e.Stage)
		if i > 0 {
			assert.Greater(t, e.Seq, result.Trace[i-1].Seq)
		}
	}
}

func TestRenderFailureIsReported(t *testing.T) {
	s := newTestServer(t, nil)

	require.Nil(t, s.Render(context.Background(), RenderRequest{Source: helloSource}).Error)
	result := s.Render(context.Background(), RenderRequest{Source: blockedSource})

	require.NotNil(t, result.Error)
	assert.Equal(t, "security", result.Error.Type)
	assert.Equal(t, "TEMPLATE_SECURITY_VIOLATION", result.Error.Code)
	assert.Equal(t, renderer.StageCheckTags, result.Error.Stage)
	assert.Empty(t, result.HTML)
	assert.Empty(t, result.CSS)
	assert.Empty(t, result.ScopeToken)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, renderer.StageFailed, last.Stage)
	assert.Equal(t, trace.StatusDanger, last.Status)
}

func TestRenderFile(t *testing.T) {
	s := newTestServer(t, nil)
	path := filepath.Join(t.TempDir(), "Hello.vue")
	require.NoError(t, os.WriteFile(path, []byte(helloSource), 0o600))

	result, err := s.RenderFile(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "<p>hi</p>")

	_, err = s.RenderFile(context.Background(), filepath.Join(t.TempDir(), "missing.vue"), nil)
	assert.ErrorContains(t, err, "SOURCE_READ")
}

func TestWatchFileRerendersOnChange(t *testing.T) {
	cfg := testConfig()
	cfg.Watch.Debounce = 20 * time.Millisecond
	s := newTestServer(t, cfg)

	path := filepath.Join(t.TempDir(), "Hello.vue")
	require.NoError(t, os.WriteFile(path, []byte(helloSource), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.WatchFile(ctx, path))
	assert.Contains(t, s.surface.Contents(), "<p>hi</p>")

	updated := strings.Replace(helloSource, `msg: "hi"`, `msg: "bye"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		return strings.Contains(s.surface.Contents(), "<p>bye</p>")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchFileRejectsBadPath(t *testing.T) {
	s := newTestServer(t, nil)
	err := s.WatchFile(context.Background(), filepath.Join(t.TempDir(), "notes.txt"))
	assert.Error(t, err)
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := newTestServer(t, nil)
	s.Render(context.Background(), RenderRequest{Source: helloSource})

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Empty(t, s.surface.Contents())
	assert.Zero(t, s.styles.Len())
}

func TestStartServesUntilCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
