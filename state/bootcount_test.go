package state

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootCount(t *testing.T) {
	t.Parallel()
	root, err := ioutil.TempDir("", "bootcount")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	for want := 1; want <= FailsafeBootLimit+1; want++ {
		n, err := BootCountIncrement(root)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	require.NoError(t, BootCountReset(root))
	n, err := BootCountIncrement(root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBootCountIgnoresGarbage(t *testing.T) {
	t.Parallel()
	root, err := ioutil.TempDir("", "bootcount")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "boot_count"), []byte("spam"), 0644))
	n, err := BootCountIncrement(root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBootCountRequiresRoot(t *testing.T) {
	t.Parallel()
	_, err := BootCountIncrement("")
	assert.Error(t, err)
}
