package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contributor is a person who has submitted recordings to the archive.
// Demographic fields are optional; which of them a deployment collects is a
// configuration decision, not a schema one.
type Contributor struct {
	ID        string    `json:"contributor_id"`
	Name      string    `json:"contributor_name"`
	AgeRange  string    `json:"age_range,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recording is one archived submission. Audio bytes live in the archive's
// blob space under RawKey (as submitted) and CleanKey (normalized); the
// record itself carries only metadata.
type Recording struct {
	ID               string           `json:"recording_id"`
	ContributorID    string           `json:"contributor_id"`
	ContributorName  string           `json:"contributor_name,omitempty"`
	RawKey           string           `json:"raw_rec_link,omitempty"`
	CleanKey         string           `json:"clean_rec_link,omitempty"`
	Transcription    string           `json:"transcription,omitempty"`
	EngTranscription string           `json:"eng_transcription,omitempty"`
	Theme            string           `json:"theme,omitempty"`
	Duration         float64          `json:"duration,omitempty"`
	MimeType         string           `json:"mime_type,omitempty"`
	Size             int              `json:"size"`
	Status           ProcessingStatus `json:"status"`
	Error            string           `json:"error,omitempty"`
	SubmittedAt      time.Time        `json:"date_submitted"`
}

// ContactMessage is a message sent through the contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Payload is a finished, immutable audio byte sequence produced by a
// recording session or an accepted upload, ready for submission.
// DurationSeconds is a wall-clock hint and is only meaningful for live
// captures (Live=true); uploads carry 0.
type Payload struct {
	Data            []byte `json:"data"`
	MimeType        string `json:"mime_type"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Live            bool   `json:"live"`
}

// Metadata is the submission form's field set. Which fields are required is
// deployment configuration, validated by the pipeline.
type Metadata struct {
	ContributorID    string `json:"contributor_id"`
	Transcription    string `json:"transcription,omitempty"`
	EngTranscription string `json:"eng_transcription,omitempty"`
	Theme            string `json:"theme,omitempty"`
}

// ProcessingStatus tracks a submission through the pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusValidating ProcessingStatus = "validating"
	StatusProcessing ProcessingStatus = "processing"
	StatusStoring    ProcessingStatus = "storing"
	StatusReady      ProcessingStatus = "ready"
	StatusFailed     ProcessingStatus = "failed"
)

// Filter selects recordings from the archive. Query is matched
// case-insensitively against transcriptions, theme, contributor name and
// location; Theme is an equality constraint.
type Filter struct {
	Query         string
	Theme         string
	ContributorID string
	Limit         int
}

// Matches reports whether rec satisfies the filter. The contributor's
// location is passed separately since the record only carries the name.
func (f Filter) Matches(rec *Recording, location string) bool {
	if f.ContributorID != "" && rec.ContributorID != f.ContributorID {
		return false
	}
	if f.Theme != "" && !strings.EqualFold(rec.Theme, f.Theme) {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	for _, field := range []string{rec.Transcription, rec.EngTranscription, rec.Theme, rec.ContributorName, location} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Submission couples a finished payload with its form metadata on its way
// into the pipeline. Clean is filled by the processing stage with the
// normalized audio variant, when one could be produced.
type Submission struct {
	Recording *Recording
	Payload   *Payload
	Metadata  Metadata
	Clean     []byte
}

// PipelineMessage carries a submission between pipeline stages.
type PipelineMessage struct {
	Submission *Submission
	Error      error
	Stage      string
}

// NewRecording builds the pending record for a fresh submission.
func NewRecording(meta Metadata, contributorName string, p *Payload) *Recording {
	return &Recording{
		ID:               uuid.New().String(),
		ContributorID:    meta.ContributorID,
		ContributorName:  contributorName,
		Transcription:    meta.Transcription,
		EngTranscription: meta.EngTranscription,
		Theme:            meta.Theme,
		Duration:         float64(p.DurationSeconds),
		MimeType:         p.MimeType,
		Size:             len(p.Data),
		Status:           StatusPending,
		SubmittedAt:      time.Now(),
	}
}

// NewContributor builds a contributor with a fresh id and timestamps.
func NewContributor(name, ageRange, gender, location string) *Contributor {
	now := time.Now()
	return &Contributor{
		ID:        uuid.New().String(),
		Name:      name,
		AgeRange:  ageRange,
		Gender:    gender,
		Location:  location,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewContactMessage builds a contact message with a fresh id.
func NewContactMessage(name, email, subject, body string) *ContactMessage {
	return &ContactMessage{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}
}
