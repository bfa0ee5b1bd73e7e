package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/golaunch/server/runner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noFlushWriter is a ResponseWriter without http.Flusher.
type noFlushWriter struct {
	header http.Header
}

func (w *noFlushWriter) Header() http.Header         { return w.header }
func (w *noFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *noFlushWriter) WriteHeader(int)             {}

// failingWriter fails every write after the headers.
type failingWriter struct {
	*httptest.ResponseRecorder
}

func (w failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestSSE_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	require.NoError(t, s.Emit(runner.NewRecord(runner.KindOutput, "hello")))
	require.NoError(t, s.Heartbeat())
	require.NoError(t, s.Emit(runner.StreamEndRecord(runner.RunStateSuccess)))

	assert.Equal(t,
		`data: {"type":"output","message":"hello"}`+"\n\n"+
			": keepalive\n\n"+
			`data: {"type":"stream_end","status":"success"}`+"\n\n",
		rec.Body.String())
}

func TestSSE_RequiresFlusher(t *testing.T) {
	_, err := NewSSE(&noFlushWriter{header: make(http.Header)}, testLogger())
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestSSE_WriteFailureCloses(t *testing.T) {
	w := failingWriter{httptest.NewRecorder()}
	s, err := NewSSE(w, testLogger())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Emit(runner.NewRecord(runner.KindInfo, "x")), io.ErrClosedPipe)
	assert.ErrorIs(t, s.Heartbeat(), io.EOF)
}

func TestSSE_Close(t *testing.T) {
	s, err := NewSSE(httptest.NewRecorder(), testLogger())
	require.NoError(t, err)
	s.Close()
	assert.ErrorIs(t, s.Emit(runner.NewRecord(runner.KindInfo, "x")), io.EOF)
}

func TestWebSocket(t *testing.T) {
	upgrader := NewUpgrader()
	clientGone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := UpgradeWebSocket(upgrader, w, r, testLogger())
		if !assert.NoError(t, err) {
			return
		}
		ctx := ws.Watch(context.Background())
		assert.NoError(t, ws.Emit(runner.NewRecord(runner.KindStart, "go")))
		assert.NoError(t, ws.Heartbeat())
		assert.NoError(t, ws.Emit(runner.UninstallCompleteRecord(true)))

		<-ctx.Done()
		close(clientGone)
		ws.Close()
		assert.ErrorIs(t, ws.Emit(runner.NewRecord(runner.KindInfo, "late")), io.EOF)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		pinged <- struct{}{}
		return nil
	})

	var got []runner.Record
	for i := 0; i < 2; i++ {
		var rec runner.Record
		require.NoError(t, conn.ReadJSON(&rec))
		got = append(got, rec)
	}
	assert.Equal(t, runner.NewRecord(runner.KindStart, "go"), got[0])
	assert.Equal(t, runner.KindComplete, got[1].Type)
	require.NotNil(t, got[1].Success)
	assert.True(t, *got[1].Success)

	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("no ping received")
	}

	require.NoError(t, conn.Close())
	select {
	case <-clientGone:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not notice the client leaving")
	}
}
