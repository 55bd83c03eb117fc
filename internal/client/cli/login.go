package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storekeeper/internal/client/services"
)

// Login authenticates against the backend with an API key. A missing user,
// workspace or key is asked for interactively.
func (a *App) Login(ctx context.Context, userID, workspaceID, apiKey string) error {
	var err error
	cur, curWS := a.identity()
	if userID == "" {
		userID = cur
	}
	if workspaceID == "" {
		workspaceID = curWS
	}

	if userID == "" {
		if userID, err = GetSimpleText(a.reader, "User:", a.out); err != nil {
			return err
		}
	}
	if workspaceID == "" {
		if workspaceID, err = GetSimpleText(a.reader, "Workspace:", a.out); err != nil {
			return err
		}
	}
	if apiKey == "" {
		key, err := GetPassword(a.out)
		if err != nil {
			return err
		}
		apiKey = string(key)
		clear(key)
	}
	if userID == "" || workspaceID == "" || apiKey == "" {
		return NewExitError(ExitCommandError, "user, workspace and API key are required")
	}

	if err := a.session.Login(ctx, userID, workspaceID, apiKey); err != nil {
		return err
	}
	a.cfg.UserID, a.cfg.WorkspaceID = userID, workspaceID
	fmt.Fprintf(a.out, "logged in as %s in %s\n", userID, workspaceID)

	a.restartAutoSync(ctx)
	return nil
}

// Logout forgets the tokens. Pending changes block it unless discard is set.
func (a *App) Logout(ctx context.Context, discard bool) error {
	err := a.session.Logout(ctx, discard)
	var pending *services.PendingChangesError
	if errors.As(err, &pending) {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d unsynced changes; run sync first or logout --discard", pending.Count))
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	as := a.autosync
	a.autosync = nil
	a.mu.Unlock()
	if as != nil {
		as.Stop()
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.session.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, renderStatus(st, a.monitor.State().IsOnline))
	return nil
}

// Upload stores a local file as an asset and prints its path.
func (a *App) Upload(ctx context.Context, filename string) error {
	path, err := a.assets.UploadFile(ctx, filename)
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	fmt.Fprintln(a.out, path)
	return nil
}

// Download writes the asset at path into filename.
func (a *App) Download(ctx context.Context, path, filename string) error {
	if err := a.assets.DownloadFile(ctx, path, filename); err != nil {
		return fmt.Errorf("download %s: %w", path, err)
	}
	fmt.Fprintln(a.out, "saved", filename)
	return nil
}
