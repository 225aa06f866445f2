package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latchdb/types"
)

func TestTransaction_InitialState(t *testing.T) {
	tx := newTransaction(1, RepeatableRead)
	assert.Equal(t, ID(1), tx.ID())
	assert.Equal(t, RepeatableRead, tx.IsolationLevel())
	assert.Equal(t, Growing, tx.State())
}

func TestTransaction_LockSetBookkeeping(t *testing.T) {
	tx := newTransaction(1, RepeatableRead)
	rid := types.RID{PageID: 1, Slot: 0}

	assert.False(t, tx.IsSharedLocked(rid))
	tx.AddSharedLock(rid)
	assert.True(t, tx.IsSharedLocked(rid))

	tx.RemoveSharedLock(rid)
	assert.False(t, tx.IsSharedLocked(rid))

	tx.AddExclusiveLock(rid)
	assert.True(t, tx.IsExclusiveLocked(rid))
	tx.RemoveExclusiveLock(rid)
	assert.False(t, tx.IsExclusiveLocked(rid))
}

func TestTransaction_CompareAndAbort(t *testing.T) {
	tx := newTransaction(1, RepeatableRead)

	assert.False(t, tx.CompareAndAbort(Shrinking), "state is GROWING, not SHRINKING")
	assert.Equal(t, Growing, tx.State())

	assert.True(t, tx.CompareAndAbort(Growing))
	assert.Equal(t, Aborted, tx.State())
}

func TestTransaction_TransitionShrinkingIfGrowing(t *testing.T) {
	tx := newTransaction(1, RepeatableRead)
	tx.TransitionShrinkingIfGrowing()
	assert.Equal(t, Shrinking, tx.State())

	tx.SetState(Growing)
	tx.SetState(Committed)
	tx.TransitionShrinkingIfGrowing()
	assert.Equal(t, Committed, tx.State(), "no-op from any state but GROWING")
}

func TestTransaction_WriteSetIsACopy(t *testing.T) {
	tx := newTransaction(1, RepeatableRead)
	rid := types.RID{PageID: 1, Slot: 0}

	tx.RecordWrite(WriteInsert, rid)
	ws := tx.WriteSet()
	require.Len(t, ws, 1)
	assert.Equal(t, WriteInsert, ws[0].Kind)
	assert.Equal(t, rid, ws[0].RID)

	ws[0].Kind = WriteDelete
	assert.Equal(t, WriteInsert, tx.WriteSet()[0].Kind, "mutating the returned slice must not affect the transaction")
}

func TestIsolationLevel_String(t *testing.T) {
	assert.Equal(t, "READ_UNCOMMITTED", ReadUncommitted.String())
	assert.Equal(t, "READ_COMMITTED", ReadCommitted.String())
	assert.Equal(t, "REPEATABLE_READ", RepeatableRead.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "GROWING", Growing.String())
	assert.Equal(t, "SHRINKING", Shrinking.String())
	assert.Equal(t, "COMMITTED", Committed.String())
	assert.Equal(t, "ABORTED", Aborted.String())
}
