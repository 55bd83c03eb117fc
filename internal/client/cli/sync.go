package cli

import (
	"context"
	"encoding/json"
	"fmt"
)

// Sync runs one full sync of the active workspace. With asJSON the
// structured result is printed, otherwise a summary. A failed sync returns
// an ExitError with ExitFailure.
func (a *App) Sync(ctx context.Context, asJSON bool) error {
	userID, ws := a.identity()
	if ws == "" {
		return WrapExitError(ExitCommandError, "sync", errNoWorkspace)
	}

	res := a.engine.Sync(ctx, userID, ws)
	if asJSON {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(b))
	} else {
		fmt.Fprintln(a.out, renderResult(res))
	}

	if !res.Success {
		return NewExitError(ExitFailure, "sync failed")
	}
	return nil
}

// Pending lists queued mutations of the active workspace.
func (a *App) Pending(ctx context.Context) error {
	ws, err := a.workspace()
	if err != nil {
		return err
	}
	items, err := a.queue.List(ctx, ws)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("nothing pending"))
		return nil
	}
	for _, it := range items {
		line := fmt.Sprintf("%s  %-6s %s[%s] %s", it.ID, it.Operation, it.EntityType, it.EntityID, it.Status)
		if it.RetryCount > 0 {
			line += fmt.Sprintf(" retries=%d", it.RetryCount)
		}
		if it.RetryCount >= a.queue.MaxRetries() {
			line = offlineStyle.Render(line) + "  " + it.Error
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

// Discard drops one queued item, or every queued item of the workspace when
// itemID is empty. Dropping everything requires confirm.
func (a *App) Discard(ctx context.Context, itemID string, confirm bool) error {
	if itemID != "" {
		if err := a.queue.Discard(ctx, itemID); err != nil {
			return fmt.Errorf("discard %s: %w", itemID, err)
		}
		fmt.Fprintln(a.out, "discarded", itemID)
		return nil
	}

	ws, err := a.workspace()
	if err != nil {
		return err
	}
	if !confirm {
		n, err := a.queue.PendingCount(ctx, ws)
		if err != nil {
			return err
		}
		return NewExitError(ExitCommandError,
			fmt.Sprintf("%d pending changes would be lost; pass --yes to discard them", n))
	}
	n, err := a.queue.DiscardAll(ctx, ws)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "discarded %d changes\n", n)
	return nil
}
