package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"voice-archive/pkg/config"
	"voice-archive/pkg/models"
	"voice-archive/pkg/storage"
)

// Manager runs submissions through ingestion, validation, audio processing
// and storage. Each stage hands the message to the next over a bounded
// channel; a stage failure marks the record failed and drops the message.
type Manager struct {
	config  config.PipelineConfig
	meta    config.MetadataConfig
	archive storage.Archive
	logger  *zap.Logger

	ingestionCh  chan *models.Submission
	validationCh chan *models.PipelineMessage
	processingCh chan *models.PipelineMessage
	storageCh    chan *models.PipelineMessage

	validationPool *WorkerPool
	processingPool *WorkerPool
	storagePool    *WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg config.PipelineConfig, meta config.MetadataConfig, archive storage.Archive, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:  cfg,
		meta:    meta,
		archive: archive,
		logger:  logger,

		ingestionCh:  make(chan *models.Submission, cfg.QueueSize),
		validationCh: make(chan *models.PipelineMessage, cfg.QueueSize),
		processingCh: make(chan *models.PipelineMessage, cfg.QueueSize),
		storageCh:    make(chan *models.PipelineMessage, cfg.QueueSize),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.logger.Info("pipeline starting")

	m.validationPool = NewWorkerPool(m.config.ValidationWorkers, m.validateSubmission)
	m.processingPool = NewWorkerPool(m.config.ProcessingWorkers, m.processAudio)
	m.storagePool = NewWorkerPool(m.config.StorageWorkers, m.storeSubmission)

	m.validationPool.Start(m.ctx)
	m.processingPool.Start(m.ctx)
	m.storagePool.Start(m.ctx)

	m.wg.Add(4)
	go m.runIngestionStage()
	go m.runValidationStage()
	go m.runProcessingStage()
	go m.runStorageStage()

	return nil
}

func (m *Manager) Stop() {
	m.logger.Info("pipeline stopping")
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("pipeline stopped")
}

// Submit persists the pending record so it is immediately visible to
// polling clients, then queues the submission. Fails fast when the queue
// is full or the pipeline is shutting down.
func (m *Manager) Submit(ctx context.Context, sub *models.Submission) error {
	if m.ctx == nil {
		return fmt.Errorf("pipeline is not running")
	}
	if err := m.archive.SaveRecording(ctx, sub.Recording); err != nil {
		return fmt.Errorf("failed to persist pending recording: %w", err)
	}

	select {
	case m.ingestionCh <- sub:
		m.logger.Info("submission queued",
			zap.String("recording_id", sub.Recording.ID),
			zap.Int("bytes", len(sub.Payload.Data)))
		return nil
	case <-m.ctx.Done():
		return fmt.Errorf("pipeline is shutting down")
	default:
		return fmt.Errorf("pipeline queue is full")
	}
}

func (m *Manager) runIngestionStage() {
	defer m.wg.Done()

	for {
		select {
		case sub := <-m.ingestionCh:
			msg := &models.PipelineMessage{
				Submission: sub,
				Stage:      "ingestion",
			}
			m.setStatus(msg, models.StatusValidating)

			select {
			case m.validationCh <- msg:
			case <-m.ctx.Done():
				return
			}

		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) runValidationStage() {
	defer m.wg.Done()

	for {
		select {
		case msg := <-m.validationCh:
			m.validationPool.Submit(msg)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) runProcessingStage() {
	defer m.wg.Done()

	for {
		select {
		case msg := <-m.processingCh:
			m.processingPool.Submit(msg)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) runStorageStage() {
	defer m.wg.Done()

	for {
		select {
		case msg := <-m.storageCh:
			m.storagePool.Submit(msg)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) setStatus(msg *models.PipelineMessage, status models.ProcessingStatus) {
	rec := msg.Submission.Recording
	rec.Status = status
	if err := m.archive.UpdateRecordingStatus(m.ctx, rec.ID, status, ""); err != nil {
		m.logger.Warn("failed to update recording status",
			zap.String("recording_id", rec.ID),
			zap.Error(err))
	}
}

func (m *Manager) fail(msg *models.PipelineMessage, err error) {
	rec := msg.Submission.Recording
	msg.Error = err
	rec.Status = models.StatusFailed
	rec.Error = err.Error()
	m.logger.Warn("submission failed",
		zap.String("recording_id", rec.ID),
		zap.String("stage", msg.Stage),
		zap.Error(err))
	if uerr := m.archive.UpdateRecordingStatus(m.ctx, rec.ID, models.StatusFailed, err.Error()); uerr != nil {
		m.logger.Error("failed to mark recording failed",
			zap.String("recording_id", rec.ID),
			zap.Error(uerr))
	}
}
