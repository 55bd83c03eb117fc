package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/entities"
	"github.com/dmitrijs2005/storekeeper/internal/client/store"
)

func parseTable(s string) (models.EntityType, error) {
	t, err := models.ParseEntityType(s)
	if err != nil {
		names := make([]string, len(models.EntityTypes))
		for i, et := range models.EntityTypes {
			names[i] = string(et)
		}
		return "", WrapExitError(ExitCommandError, "tables: "+strings.Join(names, ", "), err)
	}
	return t, nil
}

func fields(args []string) (map[string]any, error) {
	data, err := models.FieldsFromArgs(args)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "bad field", err)
	}
	return data, nil
}

// Add creates an entity in the active workspace and prints its id.
func (a *App) Add(ctx context.Context, table string, fieldArgs []string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	data, err := fields(fieldArgs)
	if err != nil {
		return err
	}
	ws, err := a.workspace()
	if err != nil {
		return err
	}

	e, err := a.entities.Create(ctx, t, ws, data)
	if err != nil {
		return fmt.Errorf("create %s: %w", t, err)
	}
	fmt.Fprintln(a.out, e.ID)
	return nil
}

// Update applies name=value patches; name=null removes the field.
func (a *App) Update(ctx context.Context, table, id string, fieldArgs []string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	patch, err := fields(fieldArgs)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return NewExitError(ExitCommandError, "nothing to update")
	}

	e, err := a.entities.Update(ctx, t, id, patch)
	if err != nil {
		return fmt.Errorf("update %s[%s]: %w", t, id, err)
	}
	fmt.Fprintf(a.out, "%s v%d %s\n", e.ID, e.Version, e.SyncStatus)
	return nil
}

func (a *App) Delete(ctx context.Context, table, id string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	if err := a.entities.Delete(ctx, t, id); err != nil {
		return fmt.Errorf("delete %s[%s]: %w", t, id, err)
	}
	fmt.Fprintln(a.out, "deleted", id)
	return nil
}

// Get prints one entity as JSON.
func (a *App) Get(ctx context.Context, table, id string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	e, err := a.entities.Get(ctx, t, id)
	if err != nil {
		return fmt.Errorf("get %s[%s]: %w", t, id, err)
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}

// ListOptions controls ordering and size of a listing.
type ListOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}

// List prints the entities of a table matching name=value conditions, one
// per line.
func (a *App) List(ctx context.Context, table string, condArgs []string, opts ListOptions) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	conds, err := fields(condArgs)
	if err != nil {
		return err
	}
	ws, err := a.workspace()
	if err != nil {
		return err
	}

	f := store.Filter{
		WorkspaceID: ws,
		OrderBy:     opts.OrderBy,
		Desc:        opts.Desc,
		Limit:       opts.Limit,
	}
	names := make([]string, 0, len(conds))
	for name := range conds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.Conditions = append(f.Conditions, entities.Eq(name, conds[name]))
	}

	list, err := a.entities.Query(ctx, t, f)
	if err != nil {
		return fmt.Errorf("list %s: %w", t, err)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("no "+string(t)))
		return nil
	}
	for _, e := range list {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s  %-8s v%-3d %s\n", e.ID, e.SyncStatus, e.Version, b)
	}
	return nil
}
