// Package statestore persists the agent's station id between restarts.
//
// Every backend implements realtime.Storage (Get, Set, Delete on string
// keys):
//   - realtime.MemoryStorage: nothing survives a restart
//   - FileStore: a small YAML map rewritten atomically on each change
//   - SQLiteStore: a kv table in a modernc.org/sqlite database (WAL mode)
//
// Open(backend, path) picks one from the agent config's state section.
package statestore
