// Package common contains shared constants and sentinel errors used across
// storekeeper components.
package common

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// WorkspaceHeaderName carries the workspace a request is scoped to.
const WorkspaceHeaderName = "workspace_id"
