package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-archive/pkg/models"
	"voice-archive/pkg/session"
	"voice-archive/pkg/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsMessage struct {
	Type     string          `json:"type"`
	MimeType string          `json:"mime_type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`

	ContributorID    string `json:"contributor_id,omitempty"`
	Transcription    string `json:"transcription,omitempty"`
	EngTranscription string `json:"eng_transcription,omitempty"`
	Theme            string `json:"theme,omitempty"`

	RecordingID string `json:"recording_id,omitempty"`
	State       string `json:"state,omitempty"`
	Status      string `json:"status,omitempty"`
	Elapsed     int    `json:"elapsed,omitempty"`
	Error       string `json:"error,omitempty"`
}

// wsDevice adapts the websocket chunk stream to the session's capture
// device contract. The client's binary frames are the microphone.
type wsDevice struct {
	mime string
	ch   chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSDevice(mime string) *wsDevice {
	if mime == "" {
		mime = "audio/webm"
	}
	return &wsDevice{mime: mime, ch: make(chan []byte, 64)}
}

func (d *wsDevice) Chunks() <-chan []byte { return d.ch }
func (d *wsDevice) MimeType() string      { return d.mime }
func (d *wsDevice) Err() error            { return nil }

func (d *wsDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	return nil
}

func (d *wsDevice) push(data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- data:
		return true
	default:
		return false
	}
}

// wsOpener hands the session whatever device the handler prepared for the
// current capture.
type wsOpener struct {
	mu  sync.Mutex
	dev *wsDevice
}

func (o *wsOpener) set(dev *wsDevice) {
	o.mu.Lock()
	o.dev = dev
	o.mu.Unlock()
}

func (o *wsOpener) Open(_ context.Context) (session.CaptureDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dev == nil {
		return nil, errors.New("no capture stream attached")
	}
	return o.dev, nil
}

// wsConn serializes writes; status monitoring runs concurrently with the
// read loop.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg wsMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteJSON(msg)
}

// RecordSocket drives a live recording session over a websocket. The
// client sends control messages; its chunk frames act as the capture
// device. One payload-ready notification is sent per completed capture or
// accepted upload, after which the submission is queued and its processing
// status streamed back until it is ready or failed.
func (h *Handlers) RecordSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	payloads := make(chan models.Payload, 4)
	opener := &wsOpener{}
	sess := session.New(opener, h.logger,
		session.OnPayload(func(p models.Payload) { payloads <- p }),
		session.OnError(func(err error) {
			conn.send(wsMessage{Type: "device_error", Error: err.Error()})
		}),
	)
	defer sess.Dispose()

	var device *wsDevice
	for {
		var msg wsMessage
		if err := raw.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "start":
			device = newWSDevice(msg.MimeType)
			opener.set(device)
			sess.Start(ctx)
			conn.send(wsMessage{Type: "started"})

		case "chunk":
			var data []byte
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				conn.send(wsMessage{Type: "error", Error: "invalid chunk encoding"})
				continue
			}
			if device == nil || !device.push(data) {
				conn.send(wsMessage{Type: "error", Error: "no active capture"})
			}

		case "status":
			conn.send(wsMessage{
				Type:    "status",
				State:   sess.State().String(),
				Elapsed: sess.Elapsed(),
			})

		case "stop":
			if sess.State() != session.StateRecording {
				conn.send(wsMessage{Type: "error", Error: "no active capture"})
				continue
			}
			sess.Stop()
			h.finishCapture(ctx, conn, payloads, msg)

		case "upload":
			var data []byte
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				conn.send(wsMessage{Type: "error", Error: "invalid upload encoding"})
				continue
			}
			if err := sess.AcceptUpload(msg.MimeType, data); err != nil {
				conn.send(wsMessage{Type: "upload_rejected", Error: err.Error()})
				continue
			}
			h.finishCapture(ctx, conn, payloads, msg)

		case "ping":
			conn.send(wsMessage{Type: "pong"})

		default:
			conn.send(wsMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

// finishCapture waits for the session to emit the finished payload, queues
// the submission and streams processing status until it settles.
func (h *Handlers) finishCapture(ctx context.Context, conn *wsConn, payloads <-chan models.Payload, msg wsMessage) {
	var payload models.Payload
	select {
	case payload = <-payloads:
	case <-time.After(10 * time.Second):
		conn.send(wsMessage{Type: "error", Error: "capture did not finish"})
		return
	case <-ctx.Done():
		return
	}

	meta := models.Metadata{
		ContributorID:    msg.ContributorID,
		Transcription:    msg.Transcription,
		EngTranscription: msg.EngTranscription,
		Theme:            msg.Theme,
	}

	contributorName := ""
	if meta.ContributorID != "" {
		if c, err := h.archive.GetContributor(ctx, meta.ContributorID); err == nil {
			contributorName = c.Name
		}
	}

	rec := models.NewRecording(meta, contributorName, &payload)
	conn.send(wsMessage{
		Type:        "payload_ready",
		RecordingID: rec.ID,
		Elapsed:     payload.DurationSeconds,
	})

	sub := &models.Submission{Recording: rec, Payload: &payload, Metadata: meta}
	if err := h.pipeline.Submit(ctx, sub); err != nil {
		conn.send(wsMessage{Type: "error", RecordingID: rec.ID, Error: err.Error()})
		return
	}
	conn.send(wsMessage{Type: "submitted", RecordingID: rec.ID, Status: string(models.StatusPending)})

	go h.monitorSubmission(ctx, conn, rec.ID)
}

// monitorSubmission polls the archive and pushes status updates until the
// submission is ready or failed.
func (h *Handlers) monitorSubmission(ctx context.Context, conn *wsConn, recordingID string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec, err := h.archive.GetRecording(ctx, recordingID)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					conn.send(wsMessage{Type: "error", RecordingID: recordingID, Error: err.Error()})
				}
				return
			}

			conn.send(wsMessage{
				Type:        "status_update",
				RecordingID: recordingID,
				Status:      string(rec.Status),
			})

			switch rec.Status {
			case models.StatusReady:
				conn.send(wsMessage{Type: "processing_complete", RecordingID: recordingID})
				return
			case models.StatusFailed:
				conn.send(wsMessage{Type: "processing_failed", RecordingID: recordingID, Error: rec.Error})
				return
			}
		}
	}
}
