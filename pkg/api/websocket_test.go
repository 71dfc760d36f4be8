package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-archive/pkg/models"
)

func dialRecordSocket(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/record"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msg wsMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips interleaved status updates until a message of the wanted
// type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) wsMessage {
	t.Helper()
	for i := 0; i < 100; i++ {
		msg := readWS(t, conn)
		if msg.Type == wantType {
			return msg
		}
		require.Contains(t, []string{"status_update", "submitted", "payload_ready"}, msg.Type,
			"unexpected message %q while waiting for %q: %s", msg.Type, wantType, msg.Error)
	}
	t.Fatalf("never received %q", wantType)
	return wsMessage{}
}

func rawChunk(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return raw
}

func TestRecordSocketLiveCapture(t *testing.T) {
	env := newTestEnv(t)

	c := models.NewContributor("Abena", "", "", "Cape Coast")
	require.NoError(t, env.archive.SaveContributor(context.Background(), c))

	conn := dialRecordSocket(t, env)

	sendWS(t, conn, wsMessage{Type: "start", MimeType: "audio/webm"})
	assert.Equal(t, "started", readWS(t, conn).Type)

	// The capture is adopted asynchronously; poll until it is live.
	deadline := time.Now().Add(5 * time.Second)
	for {
		sendWS(t, conn, wsMessage{Type: "status"})
		if readWS(t, conn).State == "recording" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never became live")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sendWS(t, conn, wsMessage{Type: "chunk", Data: rawChunk(t, []byte("chunk-one-"))})
	sendWS(t, conn, wsMessage{Type: "chunk", Data: rawChunk(t, []byte("chunk-two"))})

	sendWS(t, conn, wsMessage{
		Type:          "stop",
		ContributorID: c.ID,
		Transcription: "a folk tale",
		Theme:         "Folklore",
	})

	ready := readUntil(t, conn, "payload_ready")
	require.NotEmpty(t, ready.RecordingID)

	submitted := readUntil(t, conn, "submitted")
	assert.Equal(t, ready.RecordingID, submitted.RecordingID)

	done := readUntil(t, conn, "processing_complete")
	assert.Equal(t, ready.RecordingID, done.RecordingID)

	rec, err := env.archive.GetRecording(context.Background(), ready.RecordingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, rec.Status)
	assert.Equal(t, "Abena", rec.ContributorName)
	assert.Equal(t, "audio/webm", rec.MimeType)

	data, mime, err := env.archive.GetAudio(context.Background(), rec.RawKey)
	require.NoError(t, err)
	assert.Equal(t, "chunk-one-chunk-two", string(data))
	assert.Equal(t, "audio/webm", mime)
}

func TestRecordSocketUpload(t *testing.T) {
	env := newTestEnv(t)

	c := models.NewContributor("Kojo", "", "", "Takoradi")
	require.NoError(t, env.archive.SaveContributor(context.Background(), c))

	conn := dialRecordSocket(t, env)

	sendWS(t, conn, wsMessage{
		Type:          "upload",
		MimeType:      "audio/ogg",
		Data:          rawChunk(t, []byte("prerecorded audio")),
		ContributorID: c.ID,
		Theme:         "Proverbs",
	})

	ready := readUntil(t, conn, "payload_ready")
	done := readUntil(t, conn, "processing_complete")
	assert.Equal(t, ready.RecordingID, done.RecordingID)

	rec, err := env.archive.GetRecording(context.Background(), ready.RecordingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, rec.Status)

	data, _, err := env.archive.GetAudio(context.Background(), rec.RawKey)
	require.NoError(t, err)
	assert.Equal(t, "prerecorded audio", string(data))
}

func TestRecordSocketRejectsNonAudioUpload(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRecordSocket(t, env)

	sendWS(t, conn, wsMessage{
		Type:     "upload",
		MimeType: "text/plain",
		Data:     rawChunk(t, []byte("definitely not audio")),
	})

	msg := readWS(t, conn)
	assert.Equal(t, "upload_rejected", msg.Type)
	assert.Contains(t, msg.Error, "text/plain")
}

func TestRecordSocketStopWithoutCapture(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRecordSocket(t, env)

	sendWS(t, conn, wsMessage{Type: "stop"})
	msg := readWS(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "no active capture")
}

func TestRecordSocketPing(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRecordSocket(t, env)

	sendWS(t, conn, wsMessage{Type: "ping"})
	assert.Equal(t, "pong", readWS(t, conn).Type)

	sendWS(t, conn, wsMessage{Type: "bogus"})
	msg := readWS(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown message type")
}
