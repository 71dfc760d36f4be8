package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"

	"voice-archive/pkg/models"
)

const (
	prefixContributor = "contributor:"
	prefixRecording   = "recording:"
	prefixAudio       = "audio:"
	prefixContact     = "contact:"
)

// localArchive persists the archive in a badger key-value store under the
// configured path. Values are JSON.
type localArchive struct {
	db *badger.DB
}

func NewLocalArchive(path string) (Archive, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(path, "badger"))
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &localArchive{db: db}, nil
}

func (s *localArchive) set(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *localArchive) get(key string, v interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return nil
}

// scan decodes every value under prefix through fn.
func (s *localArchive) scan(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *localArchive) SaveContributor(_ context.Context, c *models.Contributor) error {
	return s.set(prefixContributor+c.ID, c)
}

func (s *localArchive) GetContributor(_ context.Context, id string) (*models.Contributor, error) {
	var c models.Contributor
	if err := s.get(prefixContributor+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *localArchive) ListContributors(_ context.Context) ([]*models.Contributor, error) {
	var out []*models.Contributor
	err := s.scan(prefixContributor, func(val []byte) error {
		var c models.Contributor
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *localArchive) SaveRecording(_ context.Context, rec *models.Recording) error {
	return s.set(prefixRecording+rec.ID, rec)
}

func (s *localArchive) GetRecording(_ context.Context, id string) (*models.Recording, error) {
	var rec models.Recording
	if err := s.get(prefixRecording+id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *localArchive) ListRecordings(ctx context.Context, filter models.Filter) ([]*models.Recording, error) {
	// Contributor locations participate in free-text matching.
	locations := make(map[string]string)
	if filter.Query != "" {
		contributors, err := s.ListContributors(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range contributors {
			locations[c.ID] = c.Location
		}
	}

	var out []*models.Recording
	err := s.scan(prefixRecording, func(val []byte) error {
		var rec models.Recording
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if filter.Matches(&rec, locations[rec.ContributorID]) {
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *localArchive) UpdateRecordingStatus(ctx context.Context, id string, status models.ProcessingStatus, errMsg string) error {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Error = errMsg
	return s.SaveRecording(ctx, rec)
}

func (s *localArchive) DeleteRecording(ctx context.Context, id string) error {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixRecording + id)); err != nil {
			return err
		}
		for _, key := range []string{rec.RawKey, rec.CleanKey} {
			if key == "" {
				continue
			}
			if err := txn.Delete([]byte(prefixAudio + key)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

func (s *localArchive) SaveAudio(_ context.Context, key string, data []byte, mimeType string) error {
	return s.set(prefixAudio+key, audioBlob{MimeType: mimeType, Data: data})
}

func (s *localArchive) GetAudio(_ context.Context, key string) ([]byte, string, error) {
	var blob audioBlob
	if err := s.get(prefixAudio+key, &blob); err != nil {
		return nil, "", err
	}
	return blob.Data, blob.MimeType, nil
}

func (s *localArchive) SaveContact(_ context.Context, msg *models.ContactMessage) error {
	return s.set(prefixContact+msg.ID, msg)
}

func (s *localArchive) ListContacts(_ context.Context) ([]*models.ContactMessage, error) {
	var out []*models.ContactMessage
	err := s.scan(prefixContact, func(val []byte) error {
		var msg models.ContactMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		out = append(out, &msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *localArchive) ListThemes(ctx context.Context) ([]string, error) {
	recordings, err := s.ListRecordings(ctx, models.Filter{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var themes []string
	for _, rec := range recordings {
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

func (s *localArchive) Export(ctx context.Context) (*Export, error) {
	contributors, err := s.ListContributors(ctx)
	if err != nil {
		return nil, err
	}
	recordings, err := s.ListRecordings(ctx, models.Filter{})
	if err != nil {
		return nil, err
	}
	contacts, err := s.ListContacts(ctx)
	if err != nil {
		return nil, err
	}
	return &Export{
		GeneratedAt:  time.Now(),
		Contributors: contributors,
		Recordings:   recordings,
		Contacts:     contacts,
	}, nil
}

func (s *localArchive) Close() error {
	return s.db.Close()
}
