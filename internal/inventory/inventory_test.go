package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedkeep/seedkeep"
)

func testHash(n int) string {
	return fmt.Sprintf("%096x", n)
}

func writeBlob(t *testing.T, dir, hash string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash), make([]byte, size), 0644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeBlob(t, dir, testHash(1), 10)
	writeBlob(t, dir, testHash(2), 20)

	// Not plausible hashes: ignored, not errors.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, testHash(3)[:40]), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

	snap, err := Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Len())
	assert.True(t, snap.Has(testHash(1)))
	assert.True(t, snap.Has(testHash(2)))
	assert.False(t, snap.Has(testHash(3)))
	assert.Equal(t, dir, snap.Root())
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, seedkeep.ErrStorageUnavailable)
}

func TestSize_Lazy(t *testing.T) {
	dir := t.TempDir()
	writeBlob(t, dir, testHash(1), 123)

	snap, err := Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(123), snap.Size(testHash(1)))
	assert.Equal(t, int64(0), snap.Size(testHash(9)))
}

func TestSize_BlobDisappeared(t *testing.T) {
	dir := t.TempDir()
	writeBlob(t, dir, testHash(1), 50)

	snap, err := Scan(dir)
	require.NoError(t, err)

	// The daemon owns this directory too; a blob vanishing between scan
	// and measure is treated as absent.
	require.NoError(t, os.Remove(filepath.Join(dir, testHash(1))))

	assert.Equal(t, int64(0), snap.Size(testHash(1)))
	assert.False(t, snap.Has(testHash(1)))
}

func TestTotalSize(t *testing.T) {
	dir := t.TempDir()
	writeBlob(t, dir, testHash(1), 10)
	writeBlob(t, dir, testHash(2), 20)
	writeBlob(t, dir, testHash(3), 30)

	snap, err := Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(60), snap.TotalSize())
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	snap, err := Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, testHash(1)), snap.Path(testHash(1)))
}

func TestScan_RootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := Scan(file)
	require.Error(t, err)
	assert.True(t, errors.Is(err, seedkeep.ErrStorageUnavailable))
}
