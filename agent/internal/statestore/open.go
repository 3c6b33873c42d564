package statestore

import (
	"context"
	"fmt"
	"io"

	"github.com/nextintranet/stationlink/pkg/realtime"
)

// Store is a realtime.Storage that may hold resources.
type Store interface {
	realtime.Storage
	io.Closer
}

type memory struct{ *realtime.MemoryStorage }

func (memory) Close() error { return nil }

type file struct{ *FileStore }

func (file) Close() error { return nil }

// Open returns the backend named by backend: memory, file or sqlite.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return memory{realtime.NewMemoryStorage()}, nil
	case "file":
		return file{NewFileStore(path)}, nil
	case "sqlite":
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("statestore: unknown backend %q", backend)
	}
}
