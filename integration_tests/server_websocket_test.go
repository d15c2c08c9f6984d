//go:build integration
// +build integration

package integration_tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sfclive/internal/config"
	"github.com/conneroisu/sfclive/internal/renderer"
	"github.com/conneroisu/sfclive/internal/server"
	"github.com/conneroisu/sfclive/internal/trace"
)

const counterSource = `<template>
<div class="counter">
  <span>{{ count }}</span>
  <button @click="inc">+</button>
</div>
</template>
<script>
export default {
  name: "Counter",
  data() { return { count: 0 } },
  methods: {
    inc() {
      this.count++
      this.$emit("changed", this.count)
    },
  },
}
</script>
<style>.counter { display: flex; }</style>`

type liveServer struct {
	srv     *server.PreviewServer
	baseURL string
	cancel  context.CancelFunc
	done    chan error
}

// startServer runs a preview server on a free port until the test ends.
func startServer(t *testing.T, pacing bool) *liveServer {
	t.Helper()

	port, err := FindAvailablePort()
	require.NoError(t, err)
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port
	cfg.Server.AllowedOrigins = []string{baseURL}
	cfg.Scheduler.Enabled = pacing
	cfg.Scheduler.MinDelay = 5 * time.Millisecond
	cfg.Scheduler.MaxDelay = 10 * time.Millisecond
	cfg.Watch.Debounce = 20 * time.Millisecond

	srv, err := server.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ls := &liveServer{srv: srv, baseURL: baseURL, cancel: cancel, done: make(chan error, 1)}
	go func() { ls.done <- srv.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-ls.done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	readyCtx, readyCancel := context.WithTimeout(context.Background(), DefaultTimeout())
	defer readyCancel()
	_, err = WaitForServerReadiness(readyCtx, baseURL)
	require.NoError(t, err)
	return ls
}

func (ls *liveServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ls.baseURL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ls.baseURL}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	var hello server.Message
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, server.MessageHello, hello.Type)
	return conn
}

func (ls *liveServer) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ls.baseURL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", ls.baseURL)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

// readUntil collects messages up to and including the first of msgType.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []server.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got []server.Message
	for {
		var msg server.Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		got = append(got, msg)
		if msg.Type == msgType {
			return got
		}
	}
}

func TestPreviewFlow(t *testing.T) {
	ls := startServer(t, true)
	conn := ls.dial(t)

	resp, body := ls.post(t, "/api/render", server.RenderRequest{Source: counterSource, Events: []string{"changed"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result server.RenderResult
	require.NoError(t, json.Unmarshal(body, &result))
	require.Nil(t, result.Error)
	assert.Contains(t, result.HTML, "<span>0</span>")
	assert.Contains(t, result.CSS, result.ScopeToken)

	// Paced trace events arrive in order, followed by the update.
	msgs := readUntil(t, conn, server.MessageUpdate)
	var stages []string
	lastSeq := 0
	for _, msg := range msgs {
		if msg.Type != server.MessageTrace {
			continue
		}
		require.NotNil(t, msg.Event)
		assert.Greater(t, msg.Event.Seq, lastSeq)
		lastSeq = msg.Event.Seq
		stages = append(stages, msg.Event.Stage)
	}
	require.NotEmpty(t, stages)
	assert.Equal(t, renderer.StageComplete, stages[len(stages)-1])
	update := msgs[len(msgs)-1]
	assert.Equal(t, result.HTML, update.HTML)
	assert.Equal(t, result.CSS, update.CSS)

	resp, body = ls.post(t, "/api/dispatch", map[string]any{"path": []int{1}, "event": "click"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	msgs = readUntil(t, conn, server.MessageUpdate)
	var emitted *server.Message
	for i := range msgs {
		if msgs[i].Type == server.MessageEmit {
			emitted = &msgs[i]
		}
	}
	require.NotNil(t, emitted, "emit message precedes the update")
	assert.Equal(t, "changed", emitted.Name)
	assert.Equal(t, []any{float64(1)}, emitted.Args)
	assert.Contains(t, msgs[len(msgs)-1].HTML, "<span>1</span>")

	previewResp, err := http.Get(ls.baseURL + "/preview")
	require.NoError(t, err)
	defer previewResp.Body.Close()
	page, err := io.ReadAll(previewResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<span>1</span>")
	assert.Contains(t, string(page), `<style id="sfclive-styles">`+result.CSS+`</style>`)
}

func TestRenderFailureStreamsDangerEvent(t *testing.T) {
	ls := startServer(t, false)
	conn := ls.dial(t)

	resp, body := ls.post(t, "/api/render", server.RenderRequest{Source: `<template><div v-html="x"></div></template>`})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	msgs := readUntil(t, conn, server.MessageUpdate)
	var failed *trace.Event
	for _, msg := range msgs {
		if msg.Type == server.MessageTrace && msg.Event.Status == trace.StatusDanger {
			failed = msg.Event
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, renderer.StageFailed, failed.Stage)
	assert.True(t, failed.Done)

	update := msgs[len(msgs)-1]
	require.NotNil(t, update.Error)
	assert.Equal(t, renderer.StageCheckDirectives, update.Error.Stage)
	assert.Empty(t, update.HTML)
}

func TestWatchedFileUpdatesClients(t *testing.T) {
	ls := startServer(t, false)
	conn := ls.dial(t)

	path := CreateTestComponent(t, t.TempDir(), "Counter.vue", counterSource)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ls.srv.WatchFile(ctx, path))

	first := readUntil(t, conn, server.MessageUpdate)
	assert.Contains(t, first[len(first)-1].HTML, "<span>0</span>")

	CreateTestComponent(t, "", path, strings.Replace(counterSource, "count: 0", "count: 41", 1))

	// Editors may produce more than one write event; wait for the new state.
	for {
		msgs := readUntil(t, conn, server.MessageUpdate)
		if strings.Contains(msgs[len(msgs)-1].HTML, "<span>41</span>") {
			break
		}
	}
}
