package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"voice-archive/pkg/audio"
	"voice-archive/pkg/models"
	"voice-archive/pkg/storage"
)

func (m *Manager) validateSubmission(ctx context.Context, msg *models.PipelineMessage) {
	sub := msg.Submission
	msg.Stage = "validation"

	if len(sub.Payload.Data) == 0 {
		m.fail(msg, fmt.Errorf("empty audio payload"))
		return
	}
	if m.meta.MaxUploadBytes > 0 && int64(len(sub.Payload.Data)) > m.meta.MaxUploadBytes {
		m.fail(msg, fmt.Errorf("audio payload exceeds %d bytes", m.meta.MaxUploadBytes))
		return
	}
	if !strings.HasPrefix(sub.Payload.MimeType, "audio/") {
		m.fail(msg, fmt.Errorf("content type %q is not audio", sub.Payload.MimeType))
		return
	}

	for _, field := range m.meta.RequiredFields {
		if metadataField(sub.Metadata, field) == "" {
			m.fail(msg, fmt.Errorf("required field %q is missing", field))
			return
		}
	}

	if sub.Metadata.ContributorID != "" {
		if _, err := m.archive.GetContributor(ctx, sub.Metadata.ContributorID); err != nil {
			if err == storage.ErrNotFound {
				m.fail(msg, fmt.Errorf("contributor %s not found", sub.Metadata.ContributorID))
				return
			}
			m.fail(msg, fmt.Errorf("contributor lookup failed: %w", err))
			return
		}
	}

	m.setStatus(msg, models.StatusProcessing)

	select {
	case m.processingCh <- msg:
	case <-ctx.Done():
	}
}

// processAudio computes the real duration and produces a peak-normalized
// clean variant for PCM WAV payloads. Payloads in other encodings pass
// through with the session's wall-clock duration hint; processing problems
// never fail a submission, the raw payload stays authoritative.
func (m *Manager) processAudio(ctx context.Context, msg *models.PipelineMessage) {
	sub := msg.Submission
	msg.Stage = "processing"

	if audio.IsWAV(sub.Payload.Data) {
		if info, err := audio.Parse(sub.Payload.Data); err == nil {
			sub.Recording.Duration = info.Duration()
		} else {
			m.logger.Warn("unparseable WAV payload",
				zap.String("recording_id", sub.Recording.ID),
				zap.Error(err))
		}

		if clean, err := audio.Normalize(sub.Payload.Data); err == nil {
			sub.Clean = clean
		} else {
			m.logger.Warn("normalization skipped",
				zap.String("recording_id", sub.Recording.ID),
				zap.Error(err))
		}
	}

	m.setStatus(msg, models.StatusStoring)

	select {
	case m.storageCh <- msg:
	case <-ctx.Done():
	}
}

func (m *Manager) storeSubmission(ctx context.Context, msg *models.PipelineMessage) {
	sub := msg.Submission
	rec := sub.Recording
	msg.Stage = "storage"

	storeCtx, cancel := context.WithTimeout(ctx, m.config.ProcessingTimeout)
	defer cancel()

	rawKey := rec.ID + "_raw"
	if err := m.archive.SaveAudio(storeCtx, rawKey, sub.Payload.Data, sub.Payload.MimeType); err != nil {
		m.fail(msg, fmt.Errorf("failed to store raw audio: %w", err))
		return
	}
	rec.RawKey = rawKey

	if len(sub.Clean) > 0 {
		cleanKey := rec.ID + "_clean"
		if err := m.archive.SaveAudio(storeCtx, cleanKey, sub.Clean, "audio/wav"); err != nil {
			m.fail(msg, fmt.Errorf("failed to store clean audio: %w", err))
			return
		}
		rec.CleanKey = cleanKey
	}

	rec.Status = models.StatusReady
	rec.Error = ""
	if err := m.archive.SaveRecording(storeCtx, rec); err != nil {
		m.fail(msg, fmt.Errorf("failed to store recording: %w", err))
		return
	}

	m.logger.Info("submission stored",
		zap.String("recording_id", rec.ID),
		zap.Float64("duration", rec.Duration),
		zap.Int("bytes", rec.Size))
}

// metadataField maps a configured required-field name to its value.
func metadataField(meta models.Metadata, name string) string {
	switch name {
	case "contributor_id":
		return meta.ContributorID
	case "transcription":
		return meta.Transcription
	case "eng_transcription":
		return meta.EngTranscription
	case "theme":
		return meta.Theme
	}
	// Unknown names read as empty so a misconfigured required field is
	// loud instead of silently satisfied.
	return ""
}
