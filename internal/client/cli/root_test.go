package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	// nothing listens on port 1
	cfg.ServerEndpointAddr = "127.0.0.1:1"
	cfg.ProbeTimeout = 2 * time.Second
	cfg.UserID = "u1"
	cfg.WorkspaceID = "W1"
	cfg.LogLevel = "error"
	return cfg
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Config: cfg, NewApp: NewApp})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand(testConfig(t))

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"repl", "sync", "status", "pending", "discard", "login", "logout",
		"add", "update", "delete", "get", "list", "upload", "download"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"server", "workspace", "user", "data-dir", "log-level", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(t.TempDir(), "other")

	_, err := execute(t, cfg, "add", "products", "sku=P1", "-w", "W2", "--data-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "W2", cfg.WorkspaceID)
	assert.FileExists(t, filepath.Join(dir, "storekeeper.db"))
}

func TestCommands_OfflineLifecycle(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "add", "products", "sku=P100", "name=Mug", "price=9.5")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = execute(t, cfg, "get", "products", id)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "pending", got["syncStatus"])
	assert.Equal(t, "W1", got["workspaceId"])
	assert.Equal(t, map[string]any{"sku": "P100", "name": "Mug", "price": 9.5}, got["data"])

	out, err = execute(t, cfg, "list", "products", "sku=P100")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, cfg, "list", "products", "sku=P999")
	require.NoError(t, err)
	assert.NotContains(t, out, id)

	_, err = execute(t, cfg, "update", "products", id, "price=null", "name=Cup")
	require.NoError(t, err)

	out, err = execute(t, cfg, "get", "products", id)
	require.NoError(t, err)
	assert.NotContains(t, out, "price")
	assert.Contains(t, out, `"Cup"`)

	out, err = execute(t, cfg, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "create")
	assert.Contains(t, out, id)

	_, err = execute(t, cfg, "delete", "products", id)
	require.NoError(t, err)

	_, err = execute(t, cfg, "get", "products", id)
	require.Error(t, err)
}

func TestSyncCommand_BackendDown(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "add", "orders", "status=open")
	require.NoError(t, err)

	out, err := execute(t, cfg, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)

	// the change stays queued
	out, err = execute(t, cfg, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "orders[")
}

func TestDiscardCommand_RequiresConfirmation(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "add", "customers", "email=ann@example.com")
	require.NoError(t, err)

	_, err = execute(t, cfg, "discard")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 pending changes")

	out, err := execute(t, cfg, "discard", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "discarded 1 changes")

	out, err = execute(t, cfg, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing pending")
}

func TestCommands_BadInput(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "add", "widgets", "a=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, cfg, "add", "products", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	cfg.WorkspaceID = ""
	_, err = execute(t, cfg, "add", "products", "sku=P1")
	require.ErrorIs(t, err, errNoWorkspace)
}

func TestStatusCommand(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "add", "products", "sku=P1")
	require.NoError(t, err)

	out, err := execute(t, cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "never")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", errors.New("x"))))
	assert.Equal(t, "bad: x", WrapExitError(ExitCommandError, "bad", errors.New("x")).Error())
}
