package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sfclive/internal/config"
	"github.com/conneroisu/sfclive/internal/renderer"
	"github.com/conneroisu/sfclive/internal/scheduler"
	"github.com/conneroisu/sfclive/internal/trace"
)

// startHTTP serves s on a test listener whose URL is an allowed origin.
func startHTTP(t *testing.T, cfg *config.Config, opts ...Option) (*PreviewServer, *httptest.Server) {
	t.Helper()

	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg.Server.AllowedOrigins = []string{ts.URL}
	s := newTestServer(t, cfg, opts...)
	handler = s.Handler()
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []Message
	for {
		var msg Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		got = append(got, msg)
		if msg.Type == msgType {
			return got
		}
	}
}

func TestWebSocketStreamsTraceThenUpdate(t *testing.T) {
	s, ts := startHTTP(t, testConfig())

	conn, _, err := dial(t, ts, ts.URL)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	hello := readUntil(t, conn, MessageHello)
	require.Len(t, hello, 1)
	assert.Eventually(t, func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	s.Render(context.Background(), RenderRequest{Source: helloSource})

	msgs := readUntil(t, conn, MessageUpdate)
	require.Greater(t, len(msgs), 1)

	var stages []string
	for _, msg := range msgs[:len(msgs)-1] {
		require.Equal(t, MessageTrace, msg.Type)
		require.NotNil(t, msg.Event)
		stages = append(stages, msg.Event.Stage)
	}
	assert.Equal(t, renderer.StageStarted, stages[0])
	assert.Equal(t, renderer.StageComplete, stages[len(stages)-1])

	update := msgs[len(msgs)-1]
	assert.Equal(t, `<div data-v-test="" class="hello"><p>hi</p></div>`, update.HTML)
	assert.Nil(t, update.Error)
}

func TestWebSocketForwardsEmits(t *testing.T) {
	s, ts := startHTTP(t, testConfig())

	conn, _, err := dial(t, ts, ts.URL)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	readUntil(t, conn, MessageHello)
	assert.Eventually(t, func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	s.Render(context.Background(), RenderRequest{Source: counterSource, Events: []string{"changed"}})
	readUntil(t, conn, MessageUpdate)

	_, err = s.Dispatch(context.Background(), []int{1}, "click", nil)
	require.NoError(t, err)

	msgs := readUntil(t, conn, MessageUpdate)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageEmit, msgs[0].Type)
	assert.Equal(t, "changed", msgs[0].Name)
	assert.Equal(t, []any{float64(1)}, msgs[0].Args)
	assert.Contains(t, msgs[1].HTML, "count: 1")
}

func TestWebSocketPacedDelivery(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = true

	var pauses []time.Duration
	s, ts := startHTTP(t, cfg, WithSchedulerOptions(
		scheduler.WithRand(func() float64 { return 0.5 }),
		scheduler.WithSleep(func(d time.Duration) { pauses = append(pauses, d) }),
	))
	require.NoError(t, s.pacer.Wait(context.Background()))

	conn, _, err := dial(t, ts, ts.URL)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	readUntil(t, conn, MessageHello)
	assert.Eventually(t, func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	result := s.Render(context.Background(), RenderRequest{Source: helloSource})
	require.Nil(t, result.Error)

	msgs := readUntil(t, conn, MessageUpdate)
	require.Len(t, msgs, len(result.Trace)+1)
	for i, e := range result.Trace {
		assert.Equal(t, e.Seq, msgs[i].Event.Seq)
	}

	require.NoError(t, s.pacer.Wait(context.Background()))
	for _, d := range pauses {
		assert.Equal(t, 2*time.Second, d)
	}
}

func TestWebSocketRejectsOrigin(t *testing.T) {
	_, ts := startHTTP(t, testConfig())

	_, resp, err := dial(t, ts, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dial(t, ts, "")
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestHubClose(t *testing.T) {
	s, ts := startHTTP(t, testConfig())

	conn, _, err := dial(t, ts, ts.URL)
	require.NoError(t, err)
	readUntil(t, conn, MessageHello)
	assert.Eventually(t, func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	s.hub.Close()
	assert.Zero(t, s.hub.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	assert.Error(t, err)

	assert.False(t, s.hub.register(&Client{send: make(chan []byte, 1)}))
}

func TestHubEmitWithoutClients(t *testing.T) {
	h := NewHub([]string{"http://localhost:8080"}, nil)
	assert.NotPanics(t, func() {
		h.Emit(trace.Event{Seq: 1, Stage: "render started"})
		h.Broadcast(Message{Type: MessageUpdate, Args: []any{func() {}}})
	})
	assert.Equal(t, []string{"localhost:8080"}, h.originPatterns)
}
