// Package cli provides the interactive SignOn command-line client.
//
// It wires configuration, the durable session store, the remote auth client,
// and an interactive REPL driven by the published sign-in state. Typical
// flow: restore the persisted session, start a background connectivity
// watcher, and execute user commands.
//
// Key features:
//   - Username/password sign-in with token rotation
//   - Passkey registration and passkey sign-in
//   - Credential listing, removal, and refresh
//   - Sign-out and local session cleanup
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App, StartStateWatcher, and StartOnlineStatusWatcher for details.
package cli
