package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/settings"
	"github.com/dmitrijs2005/storekeeper/internal/cryptox"
	"github.com/dmitrijs2005/storekeeper/internal/filex"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
)

// MirrorFileName is the settings cache kept next to the database.
const MirrorFileName = "settings.json"

// SettingsService stores key/value settings. The database is authoritative;
// a JSON mirror file serves GetSync. Keys listed in
// models.SensitiveSettings are encrypted in both places.
type SettingsService interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetSync(key string) (string, bool)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Load refreshes the mirror from the database.
	Load(ctx context.Context) error
}

type settingsService struct {
	repo       settings.Repository
	codec      cryptox.SecretCodec
	mirrorPath string
	logger     logging.Logger

	mu     sync.RWMutex
	mirror map[string]string
}

// NewSettingsService reads the mirror at mirrorPath if it exists. An empty
// mirrorPath keeps the mirror in memory only.
func NewSettingsService(repo settings.Repository, codec cryptox.SecretCodec, mirrorPath string, logger logging.Logger) SettingsService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &settingsService{
		repo:       repo,
		codec:      codec,
		mirrorPath: mirrorPath,
		logger:     logger.With("module", "settings"),
		mirror:     map[string]string{},
	}
	s.readMirror()
	return s
}

func sensitive(key string) bool {
	return slices.Contains(models.SensitiveSettings, key)
}

func (s *settingsService) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	out, err := s.decode(key, v)
	if err != nil {
		return "", false, fmt.Errorf("setting %s: %w", key, err)
	}
	return out, true, nil
}

func (s *settingsService) GetSync(key string) (string, bool) {
	s.mu.RLock()
	v, ok := s.mirror[key]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	out, err := s.decode(key, v)
	if err != nil {
		s.logger.Warn(context.Background(), "cannot decrypt mirrored setting", "key", key, "error", err)
		return "", false
	}
	return out, true
}

func (s *settingsService) Set(ctx context.Context, key, value string) error {
	stored := value
	if sensitive(key) && s.codec != nil {
		enc, err := s.codec.Encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
		stored = enc
	}

	if err := s.repo.Set(ctx, key, stored); err != nil {
		return err
	}

	s.mu.Lock()
	s.mirror[key] = stored
	s.mu.Unlock()
	s.writeMirror(ctx)
	return nil
}

func (s *settingsService) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()
	s.writeMirror(ctx)
	return nil
}

func (s *settingsService) Load(ctx context.Context) error {
	all, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.mirror = all
	s.mu.Unlock()
	s.writeMirror(ctx)
	return nil
}

func (s *settingsService) decode(key, v string) (string, error) {
	if !sensitive(key) || s.codec == nil {
		return v, nil
	}
	return s.codec.Decrypt(v)
}

func (s *settingsService) readMirror() {
	if s.mirrorPath == "" {
		return
	}
	b, err := os.ReadFile(s.mirrorPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn(context.Background(), "cannot read settings mirror", "path", s.mirrorPath, "error", err)
		}
		return
	}

	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		s.logger.Warn(context.Background(), "settings mirror is corrupt, ignoring", "path", s.mirrorPath, "error", err)
		return
	}
	s.mirror = m
}

// writeMirror failures are logged only; the next Load rewrites the file.
func (s *settingsService) writeMirror(ctx context.Context) {
	if s.mirrorPath == "" {
		return
	}

	s.mu.RLock()
	b, err := json.MarshalIndent(s.mirror, "", "  ")
	s.mu.RUnlock()
	if err == nil {
		err = filex.WriteFileAtomic(s.mirrorPath, b, 0o600)
	}
	if err != nil {
		s.logger.Warn(ctx, "cannot write settings mirror", "path", s.mirrorPath, "error", err)
	}
}
