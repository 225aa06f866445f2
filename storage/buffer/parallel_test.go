package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latchdb/storage/disk"
	"latchdb/types"
)

func newTestParallelPool(t *testing.T, n, poolSize int) *ParallelBufferPool {
	t.Helper()
	dms := make([]*disk.Manager, n)
	for i := 0; i < n; i++ {
		dm, err := disk.Open(filepath.Join(t.TempDir(), "inst.db"))
		require.NoError(t, err)
		t.Cleanup(func() { dm.Close() })
		dms[i] = dm
	}
	pool, err := NewParallelBufferPool(n, poolSize, dms, nil)
	require.NoError(t, err)
	return pool
}

// TestParallelPool_S6RoutingCyclesInstances is scenario S6: with N=4,
// successive NewPage calls route round-robin, and fetching any allocated
// id always reaches the instance equal to id mod 4.
func TestParallelPool_S6RoutingCyclesInstances(t *testing.T) {
	pool := newTestParallelPool(t, 4, 4)

	ids := make([]types.PageID, 8)
	for i := range ids {
		id, _, ok := pool.NewPage()
		require.True(t, ok)
		ids[i] = id
		assert.EqualValues(t, i%4, int(id)%4, "NewPage cycles through instances 0,1,2,3")
		require.True(t, pool.UnpinPage(id, false))
	}

	for _, id := range ids {
		owner := pool.instanceFor(id)
		assert.True(t, owner.Owns(id))
		assert.EqualValues(t, int(id)%4, owner.index)
	}
}

func TestParallelPool_ConstructorValidatesInstanceCount(t *testing.T) {
	_, err := NewParallelBufferPool(0, 4, nil, nil)
	assert.Error(t, err)

	dm, err := disk.Open(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer dm.Close()

	_, err = NewParallelBufferPool(2, 4, []*disk.Manager{dm}, nil)
	assert.Error(t, err, "mismatched disk manager count must fail")
}
