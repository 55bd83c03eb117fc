package cli

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. *App satisfies
// it; tests provide a recording stub.
type execIface interface {
	Add(ctx context.Context, table string, fieldArgs []string) error
	Update(ctx context.Context, table, id string, fieldArgs []string) error
	Delete(ctx context.Context, table, id string) error
	Get(ctx context.Context, table, id string) error
	List(ctx context.Context, table string, condArgs []string, opts ListOptions) error
	Sync(ctx context.Context, asJSON bool) error
	Status(ctx context.Context) error
	Pending(ctx context.Context) error
	Discard(ctx context.Context, itemID string, confirm bool) error
	Login(ctx context.Context, userID, workspaceID, apiKey string) error
	Logout(ctx context.Context, discard bool) error
	Upload(ctx context.Context, filename string) error
	Download(ctx context.Context, path, filename string) error
}

const replHelp = `Available commands:
  add <table> name=value...        create a record
  update <table> <id> name=value...  change fields (name=null removes one)
  delete <table> <id>              delete a record
  get <table> <id>                 show a record
  (l)ist <table> [name=value...]   list records
  sync                             push local changes and pull remote ones
  status                           session and connectivity
  pending                          queued changes
  discard <item-id> | --yes        drop one queued change or all of them
  login [user] [workspace]         authenticate with an API key
  logout [--discard]               forget the session
  upload <file>                    store a file as an asset
  download <path> <file>           fetch an asset
  exit | quit`

type replCommand struct {
	minArgs int
	usage   string
	run     func(ctx context.Context, a execIface, args []string) error
}

var replCommands = map[string]replCommand{
	"add": {1, "add <table> name=value...", func(ctx context.Context, a execIface, args []string) error {
		return a.Add(ctx, args[0], args[1:])
	}},
	"update": {3, "update <table> <id> name=value...", func(ctx context.Context, a execIface, args []string) error {
		return a.Update(ctx, args[0], args[1], args[2:])
	}},
	"delete": {2, "delete <table> <id>", func(ctx context.Context, a execIface, args []string) error {
		return a.Delete(ctx, args[0], args[1])
	}},
	"get": {2, "get <table> <id>", func(ctx context.Context, a execIface, args []string) error {
		return a.Get(ctx, args[0], args[1])
	}},
	"list": {1, "list <table> [name=value...]", func(ctx context.Context, a execIface, args []string) error {
		return a.List(ctx, args[0], args[1:], ListOptions{})
	}},
	"sync": {0, "sync", func(ctx context.Context, a execIface, args []string) error {
		return a.Sync(ctx, false)
	}},
	"status": {0, "status", func(ctx context.Context, a execIface, args []string) error {
		return a.Status(ctx)
	}},
	"pending": {0, "pending", func(ctx context.Context, a execIface, args []string) error {
		return a.Pending(ctx)
	}},
	"discard": {1, "discard <item-id> | --yes", func(ctx context.Context, a execIface, args []string) error {
		if args[0] == "--yes" {
			return a.Discard(ctx, "", true)
		}
		return a.Discard(ctx, args[0], false)
	}},
	"login": {0, "login [user] [workspace]", func(ctx context.Context, a execIface, args []string) error {
		var user, ws string
		if len(args) > 0 {
			user = args[0]
		}
		if len(args) > 1 {
			ws = args[1]
		}
		return a.Login(ctx, user, ws, "")
	}},
	"logout": {0, "logout [--discard]", func(ctx context.Context, a execIface, args []string) error {
		return a.Logout(ctx, slices.Contains(args, "--discard"))
	}},
	"upload": {1, "upload <file>", func(ctx context.Context, a execIface, args []string) error {
		return a.Upload(ctx, args[0])
	}},
	"download": {2, "download <path> <file>", func(ctx context.Context, a execIface, args []string) error {
		return a.Download(ctx, args[0], args[1])
	}},
}

// runREPL reads commands from scanner until EOF, "exit" or "quit", or ctx
// is done. The first token selects the command; the rest are its arguments.
// Command errors are printed and the loop goes on. onInput, when set, is
// called for every line read.
func runREPL(ctx context.Context, a execIface, statusFn func() string, onInput func(), scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("sk %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		if onInput != nil {
			onInput()
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help", "?":
			printlnFn(replHelp)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "l":
			cmd = "list"
		}

		c, ok := replCommands[cmd]
		if !ok {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if len(args) < c.minArgs {
			printlnFn("Usage:", c.usage)
			continue
		}
		if err := c.run(ctx, a, args); err != nil {
			printlnFn("error:", err)
		}
	}
}

// statusLine is the REPL prompt decoration: user@workspace, network state
// and the number of queued changes.
func (a *App) statusLine(ctx context.Context) func() string {
	return func() string {
		user, ws := a.identity()
		s := renderState(a.monitor.State().IsOnline)
		if ws != "" {
			s = fmt.Sprintf("%s@%s %s", user, ws, s)
			if n, err := a.queue.PendingCount(ctx, ws); err == nil && n > 0 {
				s += warnStyle.Render(fmt.Sprintf(" +%d", n))
			}
		}
		return "(" + s + ")"
	}
}

// RunREPL starts background sync and blocks in the interactive loop. Typing
// counts as focus, so a command after a long pause wakes the monitor.
func (a *App) RunREPL(ctx context.Context) error {
	printlnFn("Welcome to storekeeper (type 'help' for commands)")
	a.Start(ctx)
	runREPL(ctx, a, a.statusLine(ctx), a.monitor.HandleFocus, bufio.NewScanner(a.reader))
	return nil
}
