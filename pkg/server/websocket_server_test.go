package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-audio/cascade/pkg/stream"
	"github.com/cascade-audio/cascade/pkg/vad"
)

func TestParseClientEvent(t *testing.T) {
	event, err := ParseClientEvent([]byte(`{"type":"set_state","state":"responding"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientEventSetState, event.Type)
	assert.Equal(t, "responding", event.State)

	_, err = ParseClientEvent([]byte(`{"state":"idle"}`))
	assert.Error(t, err, "missing type must be rejected")

	_, err = ParseClientEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseSystemState(t *testing.T) {
	state, err := ParseSystemState("processing")
	require.NoError(t, err)
	assert.Equal(t, stream.SystemStateProcessing, state)

	_, err = ParseSystemState("thinking")
	assert.Error(t, err)
}

func TestNewResultEvent_Segment(t *testing.T) {
	seg := &stream.Segment{
		ID: 3,
		Frames: []stream.Frame{
			{ID: 0, Data: []byte{1, 2}, TimestampMs: 0},
			{ID: 1, Data: []byte{3, 4}, TimestampMs: stream.FrameDurationMs},
		},
		StartTimestampMs: 0,
		EndTimestampMs:   stream.FrameDurationMs,
	}

	event := NewResultEvent("sess_test", stream.Result{Type: stream.ResultSegment, Segment: seg})
	require.Equal(t, EventTypeSegment, event.Type)
	assert.Equal(t, "sess_test", event.SessionID)
	assert.Equal(t, 3, event.Segment.ID)
	assert.Equal(t, 2, event.Segment.FrameCount)
	assert.NotEmpty(t, event.Segment.Audio)
}

func newTestServer(t *testing.T, script ...vad.Verdict) (*WebSocketServer, *httptest.Server) {
	t.Helper()

	srv := NewWebSocketServer(DefaultConfig(), func() (vad.Classifier, error) {
		return vad.NewMockClassifier(script...), nil
	})

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWebSocket))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *ServerEvent {
	t.Helper()

	var event ServerEvent
	require.NoError(t, conn.ReadJSON(&event))
	return &event
}

func TestWebSocketServer_SessionCreated(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts)

	event := readEvent(t, conn)
	assert.Equal(t, EventTypeSessionCreated, event.Type)
	assert.True(t, strings.HasPrefix(event.SessionID, "sess_"))
	assert.Equal(t, 1, srv.SessionCount())
}

func TestWebSocketServer_AudioRoundTrip(t *testing.T) {
	_, ts := newTestServer(t,
		vad.Start(0),
		vad.None(),
		vad.End(2*stream.FrameDurationMs),
	)
	conn := dial(t, ts)
	readEvent(t, conn) // session.created

	chunk := make([]byte, 3*stream.FrameSamples*2)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, chunk))

	event := readEvent(t, conn)
	require.Equal(t, EventTypeSegment, event.Type)
	assert.Equal(t, 3, event.Segment.FrameCount)
}

func TestWebSocketServer_ControlMessages(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn) // session.created

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"set_state","state":"responding"}`)))
	event := readEvent(t, conn)
	require.Equal(t, EventTypeStateUpdated, event.Type)
	assert.Equal(t, "Responding", event.State)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_stats"}`)))
	event = readEvent(t, conn)
	require.Equal(t, EventTypeStats, event.Type)
	require.NotNil(t, event.Stats)
	assert.EqualValues(t, 0, event.Stats.Session.ChunksProcessed)
}

func TestWebSocketServer_InvalidChunkReported(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn) // session.created

	// Odd byte count: the chunk is rejected but the connection survives.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	event := readEvent(t, conn)
	require.Equal(t, EventTypeError, event.Type)
	assert.Equal(t, "odd_chunk", event.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_stats"}`)))
	event = readEvent(t, conn)
	assert.Equal(t, EventTypeStats, event.Type)
}

func TestWebSocketServer_UnknownControlEvent(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn) // session.created

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	event := readEvent(t, conn)
	require.Equal(t, EventTypeError, event.Type)
	assert.Equal(t, "unknown_event", event.Error.Code)
}
