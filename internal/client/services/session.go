package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/queue"
)

// ErrPendingChanges is returned by Logout while unsynced changes exist.
var ErrPendingChanges = errors.New("unsynced changes pending")

// PendingChangesError carries how many changes a logout would lose.
type PendingChangesError struct {
	Count int
}

func (e *PendingChangesError) Error() string {
	return fmt.Sprintf("%d unsynced changes pending", e.Count)
}

func (e *PendingChangesError) Unwrap() error {
	return ErrPendingChanges
}

// Status summarizes the local session.
type Status struct {
	UserID      string
	WorkspaceID string
	LoggedIn    bool
	Pending     int
	Exhausted   int
	LastSync    time.Time
}

// SessionService logs the client in to the backend and out again.
type SessionService interface {
	Login(ctx context.Context, userID, workspaceID, apiKey string) error
	// Logout forgets the tokens. With discard unset it refuses while
	// changes are pending; with discard set they are dropped.
	Logout(ctx context.Context, discard bool) error
	Status(ctx context.Context) (Status, error)
	// SaveTokens persists refreshed tokens.
	SaveTokens(ctx context.Context, t client.Tokens) error
	Ping(ctx context.Context) error
	Close() error
}

type sessionService struct {
	client   client.Client
	settings SettingsService
	queue    *queue.Queue
}

func NewSessionService(c client.Client, settings SettingsService, q *queue.Queue) SessionService {
	return &sessionService{client: c, settings: settings, queue: q}
}

func (s *sessionService) Login(ctx context.Context, userID, workspaceID, apiKey string) error {
	tokens, err := s.client.Login(ctx, userID, workspaceID, apiKey)
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	if err := s.SaveTokens(ctx, tokens); err != nil {
		return err
	}
	if err := s.settings.Set(ctx, models.SettingActiveUser, userID); err != nil {
		return err
	}
	return s.settings.Set(ctx, models.SettingActiveWorkspace, workspaceID)
}

func (s *sessionService) SaveTokens(ctx context.Context, t client.Tokens) error {
	if err := s.settings.Set(ctx, models.SettingRemoteAccessToken, t.Access); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	if err := s.settings.Set(ctx, models.SettingRemoteRefreshToken, t.Refresh); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

func (s *sessionService) Logout(ctx context.Context, discard bool) error {
	ws, _, err := s.settings.Get(ctx, models.SettingActiveWorkspace)
	if err != nil {
		return err
	}

	if ws != "" {
		n, err := s.queue.PendingCount(ctx, ws)
		if err != nil {
			return err
		}
		if n > 0 {
			if !discard {
				return &PendingChangesError{Count: n}
			}
			if _, err := s.queue.DiscardAll(ctx, ws); err != nil {
				return err
			}
		}
	}

	for _, key := range []string{models.SettingRemoteAccessToken, models.SettingRemoteRefreshToken} {
		if err := s.settings.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *sessionService) Status(ctx context.Context) (Status, error) {
	var st Status
	var err error

	if st.UserID, _, err = s.settings.Get(ctx, models.SettingActiveUser); err != nil {
		return st, err
	}
	if st.WorkspaceID, _, err = s.settings.Get(ctx, models.SettingActiveWorkspace); err != nil {
		return st, err
	}
	token, _, err := s.settings.Get(ctx, models.SettingRemoteAccessToken)
	if err != nil {
		return st, err
	}
	st.LoggedIn = token != ""

	if st.WorkspaceID == "" {
		return st, nil
	}

	if st.Pending, err = s.queue.PendingCount(ctx, st.WorkspaceID); err != nil {
		return st, err
	}
	exhausted, err := s.queue.Exhausted(ctx, st.WorkspaceID)
	if err != nil {
		return st, err
	}
	st.Exhausted = len(exhausted)

	v, ok, err := s.settings.Get(ctx, models.LastSyncKey(st.WorkspaceID))
	if err != nil {
		return st, err
	}
	if ok {
		if t, err := models.ParseTime(v); err == nil {
			st.LastSync = t
		}
	}
	return st, nil
}

func (s *sessionService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *sessionService) Close() error {
	return s.client.Close()
}
