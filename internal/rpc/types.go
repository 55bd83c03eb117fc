package rpc

import (
	"encoding/json"
	"time"
)

// Row is one entity record as the server stores it.
type Row struct {
	Table       string          `json:"table"`
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	UserID      string          `json:"userId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Version     int64           `json:"version"`
	IsDeleted   bool            `json:"isDeleted"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// PushRequest writes a row. BaseVersion is the server version the client
// last observed for this row (0 for a row the client created). Force skips
// conflict detection and is only sent after the client decided the local
// copy wins.
type PushRequest struct {
	Row         Row   `json:"row"`
	BaseVersion int64 `json:"baseVersion"`
	Force       bool  `json:"force,omitempty"`
}

// PushResponse returns the row as stored after the call. When Conflict is
// set nothing was written and Row is the current server copy.
type PushResponse struct {
	Row      Row  `json:"row"`
	Applied  bool `json:"applied"`
	Conflict bool `json:"conflict,omitempty"`
}

type PullRequest struct {
	Table       string    `json:"table"`
	WorkspaceID string    `json:"workspaceId"`
	Since       time.Time `json:"since"`
}

// PullResponse carries the rows changed after Since. AsOf is the server time
// the query observed; it is the next cursor.
type PullResponse struct {
	Rows []Row     `json:"rows"`
	AsOf time.Time `json:"asOf"`
}

type LoginRequest struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
	APIKey      string `json:"apiKey"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type PingRequest struct{}

type PingResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"serverTime"`
}

// PresignRequest asks for a short-lived object storage URL. Method is
// "PUT" for uploads and "GET" for downloads. For uploads an empty Path lets
// the server choose a key.
type PresignRequest struct {
	Method string `json:"method"`
	Path   string `json:"path,omitempty"`
}

type PresignResponse struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Change is a changefeed notification. Clients pull the row itself.
type Change struct {
	Table       string    `json:"table"`
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
