package pintos

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeForAndUnixMode(t *testing.T) {
	store, fm := newTestStore(t, 16)

	fileSector, _ := fm.Alloc()
	require.NoError(t, store.Create(fileSector, 0, kindFile))
	file, err := store.Open(fileSector)
	require.NoError(t, err)
	defer store.Close(file)

	dirSector, _ := fm.Alloc()
	require.NoError(t, store.Create(dirSector, 0, kindDir))
	dir, err := store.Open(dirSector)
	require.NoError(t, err)
	defer store.Close(dir)

	assert.Equal(t, fs.FileMode(0644), modeFor(file))
	assert.Equal(t, fs.ModeDir|0755, modeFor(dir))

	assert.Equal(t, uint32(S_IFREG|0644), unixMode(file))
	assert.Equal(t, uint32(S_IFDIR|0755), unixMode(dir))
}
