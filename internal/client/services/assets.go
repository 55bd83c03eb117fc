package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/netx"
	"github.com/google/uuid"
)

// AssetService moves binary attachments (receipts, product images) through
// presigned object storage URLs. Entities reference them by path.
type AssetService interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	UploadFile(ctx context.Context, filename string) (string, error)
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
	DownloadFile(ctx context.Context, path, filename string) error
}

type assetService struct {
	client client.Client
	http   *http.Client
}

// NewAssetService builds the service. A nil httpClient uses http.DefaultClient.
func NewAssetService(c client.Client, httpClient *http.Client) AssetService {
	return &assetService{client: c, http: httpClient}
}

func assetPath(name string) string {
	return "assets/" + uuid.NewString() + filepath.Ext(name)
}

// Upload stores r under a fresh key derived from name and returns the path
// the server assigned.
func (s *assetService) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	p, err := s.client.PresignUpload(ctx, assetPath(name))
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, s.http, p.URL, contentType, r); err != nil {
		return "", err
	}
	return p.Path, nil
}

func (s *assetService) UploadFile(ctx context.Context, filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return s.Upload(ctx, filename, mime.TypeByExtension(filepath.Ext(filename)), f)
}

func (s *assetService) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	p, err := s.client.PresignDownload(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("presign download: %w", err)
	}
	return netx.DownloadFromPresignedURL(ctx, s.http, p.URL, w)
}

// DownloadFile writes the asset to filename, removing a partial file on
// failure.
func (s *assetService) DownloadFile(ctx context.Context, path, filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := s.Download(ctx, path, f); err != nil {
		_ = f.Close()
		_ = os.Remove(filename)
		return err
	}
	return f.Close()
}
