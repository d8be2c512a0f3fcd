package service

import (
	"path/filepath"
	"testing"

	"github.com/palmsestate/palms/internal/engine/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a migrated sqlite store on a per-test temp file.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())

	t.Cleanup(func() { _ = st.Close() })
	return st
}
