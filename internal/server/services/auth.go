package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/dmitrijs2005/storekeeper/internal/server/auth"
	"github.com/dmitrijs2005/storekeeper/internal/server/config"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService exchanges the shared API key for tokens scoped to one user and
// workspace, and rotates refresh tokens.
type AuthService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	apiKey                       []byte
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                           db,
		repomanager:                  m,
		apiKey:                       []byte(cfg.APIKey),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Login checks apiKey and issues a token pair for userID in workspaceID.
func (s *AuthService) Login(ctx context.Context, userID, workspaceID, apiKey string) (*TokenPair, error) {
	if userID == "" || workspaceID == "" {
		return nil, fmt.Errorf("%w: user and workspace are required", common.ErrorValidation)
	}
	if len(s.apiKey) == 0 || subtle.ConstantTimeCompare(s.apiKey, []byte(apiKey)) != 1 {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, userID, workspaceID, s.repomanager.RefreshTokens(s.db))
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)
		if err := repo.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, token.WorkspaceID, repo)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

type refreshTokenCreator interface {
	Create(ctx context.Context, userID, workspaceID, token string, validity time.Duration) error
}

func (s *AuthService) generateTokenPair(ctx context.Context, userID, workspaceID string, repo refreshTokenCreator) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, workspaceID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := repo.Create(ctx, userID, workspaceID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
