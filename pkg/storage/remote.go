package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"voice-archive/pkg/models"
)

// remoteArchive is a thin REST client against another archive instance's
// HTTP API. Mutating calls require the remote's API key.
type remoteArchive struct {
	client *resty.Client
}

func NewRemoteArchive(baseURL, apiKey string) Archive {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}
	return &remoteArchive{client: client}
}

func (s *remoteArchive) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := s.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("archive request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("archive returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func (s *remoteArchive) SaveContributor(ctx context.Context, c *models.Contributor) error {
	return s.do(ctx, http.MethodPut, "/api/contributors/"+c.ID, c, nil)
}

func (s *remoteArchive) GetContributor(ctx context.Context, id string) (*models.Contributor, error) {
	var c models.Contributor
	if err := s.do(ctx, http.MethodGet, "/api/contributors/"+id, nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *remoteArchive) ListContributors(ctx context.Context) ([]*models.Contributor, error) {
	var out struct {
		Contributors []*models.Contributor `json:"contributors"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/contributors", nil, &out); err != nil {
		return nil, err
	}
	return out.Contributors, nil
}

func (s *remoteArchive) SaveRecording(ctx context.Context, rec *models.Recording) error {
	return s.do(ctx, http.MethodPut, "/api/recordings/"+rec.ID, rec, nil)
}

func (s *remoteArchive) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	var rec models.Recording
	if err := s.do(ctx, http.MethodGet, "/api/recordings/"+id, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *remoteArchive) ListRecordings(ctx context.Context, filter models.Filter) ([]*models.Recording, error) {
	req := s.client.R().SetContext(ctx)
	if filter.Query != "" {
		req.SetQueryParam("q", filter.Query)
	}
	if filter.Theme != "" {
		req.SetQueryParam("theme", filter.Theme)
	}
	if filter.ContributorID != "" {
		req.SetQueryParam("contributor_id", filter.ContributorID)
	}
	if filter.Limit > 0 {
		req.SetQueryParam("limit", fmt.Sprintf("%d", filter.Limit))
	}

	var out struct {
		Recordings []*models.Recording `json:"recordings"`
	}
	resp, err := req.SetResult(&out).Get("/api/recordings")
	if err != nil {
		return nil, fmt.Errorf("archive request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("archive returned %s: %s", resp.Status(), resp.String())
	}
	return out.Recordings, nil
}

func (s *remoteArchive) UpdateRecordingStatus(ctx context.Context, id string, status models.ProcessingStatus, errMsg string) error {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Error = errMsg
	return s.SaveRecording(ctx, rec)
}

func (s *remoteArchive) DeleteRecording(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/api/recordings/"+id, nil, nil)
}

func (s *remoteArchive) SaveAudio(ctx context.Context, key string, data []byte, mimeType string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", mimeType).
		SetBody(data).
		Put("/api/audio/" + key)
	if err != nil {
		return fmt.Errorf("archive request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("archive returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func (s *remoteArchive) GetAudio(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := s.client.R().SetContext(ctx).Get("/api/audio/" + key)
	if err != nil {
		return nil, "", fmt.Errorf("archive request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("archive returned %s: %s", resp.Status(), resp.String())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

func (s *remoteArchive) SaveContact(ctx context.Context, msg *models.ContactMessage) error {
	return s.do(ctx, http.MethodPost, "/api/contact", msg, nil)
}

func (s *remoteArchive) ListContacts(ctx context.Context) ([]*models.ContactMessage, error) {
	var out struct {
		Messages []*models.ContactMessage `json:"messages"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/contact", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (s *remoteArchive) ListThemes(ctx context.Context) ([]string, error) {
	var out struct {
		Themes []string `json:"themes"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/themes", nil, &out); err != nil {
		return nil, err
	}
	return out.Themes, nil
}

func (s *remoteArchive) Export(ctx context.Context) (*Export, error) {
	var dump Export
	if err := s.do(ctx, http.MethodGet, "/api/export", nil, &dump); err != nil {
		return nil, err
	}
	return &dump, nil
}

func (s *remoteArchive) Close() error { return nil }
