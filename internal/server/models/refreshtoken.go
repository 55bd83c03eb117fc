package models

import "time"

// RefreshToken is a server-stored refresh token bound to one user and
// workspace.
type RefreshToken struct {
	UserID      string
	WorkspaceID string
	Token       string
	Expires     time.Time
}
