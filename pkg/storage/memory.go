package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"voice-archive/pkg/models"
)

// memoryArchive keeps everything in maps. Used for tests and ephemeral
// deployments.
type memoryArchive struct {
	mu           sync.RWMutex
	contributors map[string]*models.Contributor
	recordings   map[string]*models.Recording
	audio        map[string]audioBlob
	contacts     map[string]*models.ContactMessage
}

func NewMemoryArchive() Archive {
	return &memoryArchive{
		contributors: make(map[string]*models.Contributor),
		recordings:   make(map[string]*models.Recording),
		audio:        make(map[string]audioBlob),
		contacts:     make(map[string]*models.ContactMessage),
	}
}

func (s *memoryArchive) SaveContributor(_ context.Context, c *models.Contributor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contributors[c.ID] = &cp
	return nil
}

func (s *memoryArchive) GetContributor(_ context.Context, id string) (*models.Contributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contributors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryArchive) ListContributors(_ context.Context) ([]*models.Contributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contributor, 0, len(s.contributors))
	for _, c := range s.contributors {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryArchive) SaveRecording(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recordings[rec.ID] = &cp
	return nil
}

func (s *memoryArchive) GetRecording(_ context.Context, id string) (*models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recordings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryArchive) ListRecordings(_ context.Context, filter models.Filter) ([]*models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Recording
	for _, rec := range s.recordings {
		location := ""
		if c, ok := s.contributors[rec.ContributorID]; ok {
			location = c.Location
		}
		if filter.Matches(rec, location) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memoryArchive) UpdateRecordingStatus(_ context.Context, id string, status models.ProcessingStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.Error = errMsg
	return nil
}

func (s *memoryArchive) DeleteRecording(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.recordings, id)
	delete(s.audio, rec.RawKey)
	delete(s.audio, rec.CleanKey)
	return nil
}

func (s *memoryArchive) SaveAudio(_ context.Context, key string, data []byte, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.audio[key] = audioBlob{MimeType: mimeType, Data: buf}
	return nil
}

func (s *memoryArchive) GetAudio(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.audio[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return blob.Data, blob.MimeType, nil
}

func (s *memoryArchive) SaveContact(_ context.Context, msg *models.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.contacts[msg.ID] = &cp
	return nil
}

func (s *memoryArchive) ListContacts(_ context.Context) ([]*models.ContactMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ContactMessage, 0, len(s.contacts))
	for _, msg := range s.contacts {
		cp := *msg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryArchive) ListThemes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var themes []string
	for _, rec := range s.recordings {
		if rec.Theme == "" {
			continue
		}
		if _, ok := seen[rec.Theme]; !ok {
			seen[rec.Theme] = struct{}{}
			themes = append(themes, rec.Theme)
		}
	}
	sort.Strings(themes)
	return themes, nil
}

func (s *memoryArchive) Export(ctx context.Context) (*Export, error) {
	contributors, _ := s.ListContributors(ctx)
	recordings, _ := s.ListRecordings(ctx, models.Filter{})
	contacts, _ := s.ListContacts(ctx)
	return &Export{
		GeneratedAt:  time.Now(),
		Contributors: contributors,
		Recordings:   recordings,
		Contacts:     contacts,
	}, nil
}

func (s *memoryArchive) Close() error { return nil }
