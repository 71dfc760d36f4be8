package storage

import (
	"context"
	"fmt"
	"time"

	"voice-archive/pkg/models"
)

var ErrNotFound = fmt.Errorf("record not found")

// Archive is the persistence contract for the voice archive: recordings and
// their audio blobs, contributors, and contact messages. Implementations
// are the in-memory store, the local badger store, and a thin client
// against a remote archive's HTTP API.
type Archive interface {
	SaveContributor(ctx context.Context, c *models.Contributor) error
	GetContributor(ctx context.Context, id string) (*models.Contributor, error)
	ListContributors(ctx context.Context) ([]*models.Contributor, error)

	SaveRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
	// ListRecordings returns recordings newest-first, narrowed by the
	// filter's free-text query, theme and contributor constraints.
	ListRecordings(ctx context.Context, filter models.Filter) ([]*models.Recording, error)
	UpdateRecordingStatus(ctx context.Context, id string, status models.ProcessingStatus, errMsg string) error
	DeleteRecording(ctx context.Context, id string) error

	SaveAudio(ctx context.Context, key string, data []byte, mimeType string) error
	GetAudio(ctx context.Context, key string) ([]byte, string, error)

	SaveContact(ctx context.Context, msg *models.ContactMessage) error
	ListContacts(ctx context.Context) ([]*models.ContactMessage, error)

	// ListThemes returns the distinct themes present in the archive.
	ListThemes(ctx context.Context) ([]string, error)

	// Export dumps all metadata for administrative backup. Audio blobs are
	// excluded; they are fetched individually.
	Export(ctx context.Context) (*Export, error)

	Close() error
}

// Export is an administrative metadata dump of the archive.
type Export struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	Contributors []*models.Contributor    `json:"contributors"`
	Recordings   []*models.Recording      `json:"recordings"`
	Contacts     []*models.ContactMessage `json:"contact_messages"`
}

// audioBlob is how audio bytes and their MIME tag are stored together.
type audioBlob struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}
