package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/connectivity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	calls []string
	err   error
}

func (f *fakeExec) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeExec) Add(_ context.Context, table string, fieldArgs []string) error {
	return f.record("add %s %v", table, fieldArgs)
}
func (f *fakeExec) Update(_ context.Context, table, id string, fieldArgs []string) error {
	return f.record("update %s %s %v", table, id, fieldArgs)
}
func (f *fakeExec) Delete(_ context.Context, table, id string) error {
	return f.record("delete %s %s", table, id)
}
func (f *fakeExec) Get(_ context.Context, table, id string) error {
	return f.record("get %s %s", table, id)
}
func (f *fakeExec) List(_ context.Context, table string, condArgs []string, _ ListOptions) error {
	return f.record("list %s %v", table, condArgs)
}
func (f *fakeExec) Sync(_ context.Context, asJSON bool) error { return f.record("sync %v", asJSON) }
func (f *fakeExec) Status(context.Context) error              { return f.record("status") }
func (f *fakeExec) Pending(context.Context) error             { return f.record("pending") }
func (f *fakeExec) Discard(_ context.Context, itemID string, confirm bool) error {
	return f.record("discard %q %v", itemID, confirm)
}
func (f *fakeExec) Login(_ context.Context, userID, workspaceID, apiKey string) error {
	return f.record("login %q %q %q", userID, workspaceID, apiKey)
}
func (f *fakeExec) Logout(_ context.Context, discard bool) error {
	return f.record("logout %v", discard)
}
func (f *fakeExec) Upload(_ context.Context, filename string) error {
	return f.record("upload %s", filename)
}
func (f *fakeExec) Download(_ context.Context, path, filename string) error {
	return f.record("download %s %s", path, filename)
}

func capturePrint(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func runScript(exec execIface, lines ...string) {
	sc := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	runREPL(context.Background(), exec, func() string { return "status" }, nil, sc)
}

func TestRunREPL_Dispatch(t *testing.T) {
	capturePrint(t)

	exec := &fakeExec{}
	runScript(exec,
		"help",
		"add products sku=P100 price=9.5",
		"update products p1 price=null",
		"l products sku=P100",
		"get products p1",
		"delete products p1",
		"sync",
		"status",
		"pending",
		"discard q1",
		"discard --yes",
		"login u1 W1",
		"logout --discard",
		"upload ./a.png",
		"download assets/a.png ./b.png",
		"exit",
		"status",
	)

	assert.Equal(t, []string{
		"add products [sku=P100 price=9.5]",
		"update products p1 [price=null]",
		"list products [sku=P100]",
		"get products p1",
		"delete products p1",
		"sync false",
		"status",
		"pending",
		`discard "q1" false`,
		`discard "" true`,
		`login "u1" "W1" ""`,
		"logout true",
		"upload ./a.png",
		"download assets/a.png ./b.png",
	}, exec.calls)
}

func TestRunREPL_UsageAndUnknown(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{}
	runScript(exec, "get products", "", "frobnicate", "quit")

	assert.Empty(t, exec.calls)
	assert.Contains(t, *lines, "Usage: get <table> <id>")
	assert.Contains(t, *lines, "Unknown command: frobnicate")
	assert.Equal(t, "Bye!", (*lines)[len(*lines)-1])
}

func TestRunREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{err: errors.New("boom")}
	runScript(exec, "sync", "status")

	require.Len(t, exec.calls, 2)
	assert.Contains(t, *lines, "error: boom")
}

func TestRunREPL_StopsOnCanceledContext(t *testing.T) {
	capturePrint(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{}
	sc := bufio.NewScanner(strings.NewReader("sync\n"))
	runREPL(ctx, exec, func() string { return "" }, nil, sc)
	assert.Empty(t, exec.calls)
}

type replClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *replClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *replClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// idleExec lets the user walk away while "status" runs.
type idleExec struct {
	*fakeExec
	clock *replClock
}

func (e idleExec) Status(ctx context.Context) error {
	e.clock.advance(2 * connectivity.DefaultWakeThreshold)
	return e.fakeExec.Status(ctx)
}

func TestRunREPL_InputAfterIdleWakesMonitor(t *testing.T) {
	capturePrint(t)

	clock := &replClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	mon := connectivity.NewMonitor(nil, nil,
		connectivity.WithInitialState(true, true),
		connectivity.WithClock(clock.now))
	t.Cleanup(mon.Destroy)

	var mu sync.Mutex
	var events []connectivity.Event
	mon.Subscribe(func(ev connectivity.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	exec := idleExec{fakeExec: &fakeExec{}, clock: clock}
	sc := bufio.NewScanner(strings.NewReader("pending\nstatus\npending\n"))
	runREPL(context.Background(), exec, func() string { return "" }, mon.HandleFocus, sc)

	assert.Equal(t, []string{"pending", "status", "pending"}, exec.calls)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []connectivity.Event{connectivity.EventWake}, events)
	assert.Equal(t, clock.now(), mon.State().LastActiveAt)
}
