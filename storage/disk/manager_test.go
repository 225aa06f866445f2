package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latchdb/types"
)

func TestManager_WriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	var buf [types.PageSize]byte
	buf[0] = 0x11
	buf[types.PageSize-1] = 0x22

	require.NoError(t, m.WritePage(types.PageID(3), &buf))

	var out [types.PageSize]byte
	require.NoError(t, m.ReadPage(types.PageID(3), &out))
	assert.Equal(t, buf, out)
}

func TestManager_ReadBeyondEOFIsZeroFilled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	var out [types.PageSize]byte
	out[0] = 0xFF // prove ReadPage actually overwrites/zeroes it
	require.NoError(t, m.ReadPage(types.PageID(42), &out))

	var zero [types.PageSize]byte
	assert.Equal(t, zero, out)
}

func TestManager_SecondOpenFailsWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	_, err = Open(path)
	assert.Error(t, err)
}
