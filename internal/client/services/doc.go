// Package services contains the application services the CLI talks to:
// entity CRUD with queued sync, settings with encrypted secrets, binary
// assets in object storage and the backend session.
package services
