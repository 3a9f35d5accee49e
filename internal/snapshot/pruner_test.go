package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrunerConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultPrunerConfig().Validate())
	assert.NoError(t, PrunerConfig{Enabled: false}.Validate())
	assert.Error(t, PrunerConfig{Enabled: true, Schedule: "", Keep: 5}.Validate())
	assert.Error(t, PrunerConfig{Enabled: true, Schedule: "@hourly", Keep: 0}.Validate())
}

func TestPrunerStartRejectsBadSchedule(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p := NewPruner(store, PrunerConfig{Enabled: true, Schedule: "not a cron expr", Keep: 5})
	assert.Error(t, p.Start())
}

func TestPrunerLifecycle(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Save(context.Background(), "p1", fmt.Sprintf("v%d", i), 1, nil))
	}

	p := NewPruner(store, PrunerConfig{Enabled: true, Schedule: "@hourly", Keep: 2})
	require.NoError(t, p.Start())
	assert.Error(t, p.Start(), "double start must fail")

	// The scheduled job won't fire within the test; run the cleanup
	// directly and verify it applies the keep bound
	p.runOnce()
	infos, err := store.List(context.Background(), "p1", 0)
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	p.Stop()
	p.Stop() // idempotent
}
