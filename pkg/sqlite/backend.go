// Package sqlite exposes the local care event store while keeping its
// implementation internal.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/carechain/internal/sqlite"
	"github.com/mesh-intelligence/carechain/pkg/types"
)

// NewBackend creates a detached SQLite store. A nil logger disables
// logging.
//
// Example:
//
//	store := sqlite.NewBackend(logger)
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".carechain-db",
//	})
//	defer store.Detach()
func NewBackend(logger *zap.Logger) types.Store {
	return sqlite.NewBackend(sqlite.WithLogger(logger))
}
