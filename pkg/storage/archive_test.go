package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-archive/pkg/models"
)

// backends returns every archive implementation under test.
func backends(t *testing.T) map[string]Archive {
	t.Helper()
	local, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })
	return map[string]Archive{
		"memory": NewMemoryArchive(),
		"badger": local,
	}
}

func seedRecording(id, contributorID, theme, transcription string, age time.Duration) *models.Recording {
	return &models.Recording{
		ID:            id,
		ContributorID: contributorID,
		Theme:         theme,
		Transcription: transcription,
		Status:        models.StatusReady,
		SubmittedAt:   time.Now().Add(-age),
	}
}

func TestContributorRoundTrip(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := archive.GetContributor(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			c := models.NewContributor("Ama Serwaa", "26-35", "female", "Kumasi")
			require.NoError(t, archive.SaveContributor(ctx, c))

			got, err := archive.GetContributor(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, c.Name, got.Name)
			assert.Equal(t, c.Location, got.Location)

			list, err := archive.ListContributors(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
		})
	}
}

func TestListRecordingsFiltering(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			contributor := models.NewContributor("Kofi Mensah", "", "", "Accra")
			require.NoError(t, archive.SaveContributor(ctx, contributor))

			first := seedRecording("rec-1", contributor.ID, "Folklore", "the spider and the sky god", 3*time.Hour)
			second := seedRecording("rec-2", contributor.ID, "Proverbs", "wisdom of the elders", 2*time.Hour)
			third := seedRecording("rec-3", "someone-else", "Folklore", "a market day story", time.Hour)
			for _, rec := range []*models.Recording{first, second, third} {
				require.NoError(t, archive.SaveRecording(ctx, rec))
			}

			all, err := archive.ListRecordings(ctx, models.Filter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "rec-3", all[0].ID, "newest first")

			byTheme, err := archive.ListRecordings(ctx, models.Filter{Theme: "folklore"})
			require.NoError(t, err)
			assert.Len(t, byTheme, 2)

			byQuery, err := archive.ListRecordings(ctx, models.Filter{Query: "spider"})
			require.NoError(t, err)
			require.Len(t, byQuery, 1)
			assert.Equal(t, "rec-1", byQuery[0].ID)

			// Free text reaches the contributor's location.
			byLocation, err := archive.ListRecordings(ctx, models.Filter{Query: "accra"})
			require.NoError(t, err)
			assert.Len(t, byLocation, 2)

			byContributor, err := archive.ListRecordings(ctx, models.Filter{ContributorID: contributor.ID})
			require.NoError(t, err)
			assert.Len(t, byContributor, 2)

			limited, err := archive.ListRecordings(ctx, models.Filter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestUpdateRecordingStatus(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.ErrorIs(t, archive.UpdateRecordingStatus(ctx, "missing", models.StatusReady, ""), ErrNotFound)

			rec := seedRecording("rec-status", "c1", "", "", 0)
			rec.Status = models.StatusPending
			require.NoError(t, archive.SaveRecording(ctx, rec))

			require.NoError(t, archive.UpdateRecordingStatus(ctx, rec.ID, models.StatusFailed, "empty audio payload"))
			got, err := archive.GetRecording(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, got.Status)
			assert.Equal(t, "empty audio payload", got.Error)
		})
	}
}

func TestAudioBlobRoundTrip(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := archive.GetAudio(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			data := []byte{0x01, 0x02, 0x03}
			require.NoError(t, archive.SaveAudio(ctx, "rec-1_raw", data, "audio/ogg"))

			got, mime, err := archive.GetAudio(ctx, "rec-1_raw")
			require.NoError(t, err)
			assert.Equal(t, data, got)
			assert.Equal(t, "audio/ogg", mime)
		})
	}
}

func TestDeleteRecordingRemovesAudio(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := seedRecording("rec-del", "c1", "", "", 0)
			rec.RawKey = "rec-del_raw"
			rec.CleanKey = "rec-del_clean"
			require.NoError(t, archive.SaveRecording(ctx, rec))
			require.NoError(t, archive.SaveAudio(ctx, rec.RawKey, []byte{1}, "audio/wav"))
			require.NoError(t, archive.SaveAudio(ctx, rec.CleanKey, []byte{2}, "audio/wav"))

			require.NoError(t, archive.DeleteRecording(ctx, rec.ID))

			_, err := archive.GetRecording(ctx, rec.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			_, _, err = archive.GetAudio(ctx, rec.RawKey)
			assert.ErrorIs(t, err, ErrNotFound)
			_, _, err = archive.GetAudio(ctx, rec.CleanKey)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, archive.DeleteRecording(ctx, rec.ID), ErrNotFound)
		})
	}
}

func TestContactMessages(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			msg := models.NewContactMessage("Ama", "ama@example.com", "Hello", "Great archive!")
			require.NoError(t, archive.SaveContact(ctx, msg))

			list, err := archive.ListContacts(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "ama@example.com", list[0].Email)
		})
	}
}

func TestListThemes(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, archive.SaveRecording(ctx, seedRecording("r1", "c", "Proverbs", "", time.Minute)))
			require.NoError(t, archive.SaveRecording(ctx, seedRecording("r2", "c", "Folklore", "", time.Minute)))
			require.NoError(t, archive.SaveRecording(ctx, seedRecording("r3", "c", "Proverbs", "", time.Minute)))
			require.NoError(t, archive.SaveRecording(ctx, seedRecording("r4", "c", "", "", time.Minute)))

			themes, err := archive.ListThemes(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Folklore", "Proverbs"}, themes)
		})
	}
}

func TestExport(t *testing.T) {
	for name, archive := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, archive.SaveContributor(ctx, models.NewContributor("Kofi", "", "", "")))
			require.NoError(t, archive.SaveRecording(ctx, seedRecording("r1", "c", "Theme", "", time.Minute)))
			require.NoError(t, archive.SaveContact(ctx, models.NewContactMessage("A", "a@b.c", "", "hi")))

			dump, err := archive.Export(ctx)
			require.NoError(t, err)
			assert.Len(t, dump.Contributors, 1)
			assert.Len(t, dump.Recordings, 1)
			assert.Len(t, dump.Contacts, 1)
			assert.False(t, dump.GeneratedAt.IsZero())
		})
	}
}
