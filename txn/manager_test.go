package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_BeginAssignsIncreasingIDs(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(RepeatableRead)
	t2 := m.Begin(RepeatableRead)
	assert.Less(t, t1.ID(), t2.ID())
	assert.True(t, m.IsActive(t1.ID()))
	assert.True(t, m.IsActive(t2.ID()))
}

func TestManager_GetTransaction(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(ReadCommitted)

	got, ok := m.GetTransaction(t1.ID())
	require.True(t, ok)
	assert.Same(t, t1, got)

	_, ok = m.GetTransaction(ID(999999))
	assert.False(t, ok)
}

func TestManager_CommitRemovesFromActiveAndRejectsDoubleCommit(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(RepeatableRead)

	require.NoError(t, m.Commit(t1))
	assert.Equal(t, Committed, t1.State())
	assert.False(t, m.IsActive(t1.ID()))

	assert.Error(t, m.Commit(t1), "committing an already-terminal transaction is an error")
}

func TestManager_AbortIsIdempotent(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(RepeatableRead)

	m.Abort(t1)
	assert.Equal(t, Aborted, t1.State())
	assert.False(t, m.IsActive(t1.ID()))

	assert.NotPanics(t, func() { m.Abort(t1) }, "aborting twice (e.g. racing with wound-wait) must not panic or error")
}

func TestManager_ActiveTransactions(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(RepeatableRead)
	t2 := m.Begin(RepeatableRead)
	m.Commit(t2)

	ids := m.ActiveTransactions()
	assert.Contains(t, ids, t1.ID())
	assert.NotContains(t, ids, t2.ID())
}
