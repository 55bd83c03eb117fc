// Package cli is the storekeeper command-line client.
//
// NewRootCommand builds a cobra command tree over an App, which wires the
// local store, mutation queue, sync engine, connectivity monitor and
// services for one invocation. One-shot commands (add, list, sync, ...)
// open the store, act and close it. Without a subcommand the REPL starts:
// it keeps the App open, renders online/offline banners from the
// connectivity monitor and runs auto-sync in the background.
package cli
