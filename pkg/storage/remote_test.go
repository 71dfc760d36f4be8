package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-archive/pkg/models"
)

func TestRemoteGetRecording(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/recordings/rec-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Recording{ID: "rec-1", Theme: "Folklore", Status: models.StatusReady})
	}))
	defer srv.Close()

	archive := NewRemoteArchive(srv.URL, "")
	rec, err := archive.GetRecording(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "Folklore", rec.Theme)
}

func TestRemoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"recording not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	archive := NewRemoteArchive(srv.URL, "")
	_, err := archive.GetRecording(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = archive.GetAudio(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteListRecordingsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "spider", q.Get("q"))
		assert.Equal(t, "Folklore", q.Get("theme"))
		assert.Equal(t, "10", q.Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"recordings": []*models.Recording{{ID: "rec-1"}},
			"count":      1,
		})
	}))
	defer srv.Close()

	archive := NewRemoteArchive(srv.URL, "")
	recs, err := archive.ListRecordings(context.Background(), models.Filter{
		Query: "spider",
		Theme: "Folklore",
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rec-1", recs[0].ID)
}

func TestRemoteSaveAudioSendsKeyAndMime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/audio/rec-1_raw", r.URL.Path)
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{1, 2, 3}, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	archive := NewRemoteArchive(srv.URL, "secret")
	require.NoError(t, archive.SaveAudio(context.Background(), "rec-1_raw", []byte{1, 2, 3}, "audio/wav"))
}

func TestRemoteServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	archive := NewRemoteArchive(srv.URL, "")
	_, err := archive.GetRecording(context.Background(), "rec-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRemoteExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/export", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Export{
			Recordings: []*models.Recording{{ID: "rec-1"}},
		})
	}))
	defer srv.Close()

	archive := NewRemoteArchive(srv.URL, "")
	dump, err := archive.Export(context.Background())
	require.NoError(t, err)
	require.Len(t, dump.Recordings, 1)
}
