package models

// Setting keys with a fixed meaning.
const (
	SettingRemoteEndpointURL  = "remote_endpoint_url"
	SettingRemoteAccessToken  = "remote_access_token"
	SettingRemoteRefreshToken = "remote_refresh_token"
	SettingActiveWorkspace    = "active_workspace"
	SettingActiveUser         = "active_user"
	SettingLastSyncPrefix     = "last_sync_at:"
)

// SensitiveSettings are encrypted before they reach the store.
var SensitiveSettings = []string{
	SettingRemoteEndpointURL,
	SettingRemoteAccessToken,
	SettingRemoteRefreshToken,
}

type Setting struct {
	Key   string
	Value string
}

// LastSyncKey is the settings key holding the pull cursor of a workspace.
func LastSyncKey(workspaceID string) string {
	return SettingLastSyncPrefix + workspaceID
}
