package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试辅助函数：创建临时测试目录
func setupTestStore(t *testing.T) *Store {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// TestNewStore 测试创建文件存储实例
func TestNewStore(t *testing.T) {
	t.Run("create store with valid path", func(t *testing.T) {
		tempDir := t.TempDir()

		store, err := NewStore(tempDir)
		require.NoError(t, err)
		// 在 Windows 上，路径可能被转换为小写
		assert.Equal(t, strings.ToLower(tempDir), strings.ToLower(store.BasePath()))
	})

	t.Run("create store creates base directory if not exists", func(t *testing.T) {
		newPath := filepath.Join(t.TempDir(), "new", "nested", "path")
		_, err := NewStore(newPath)
		require.NoError(t, err)

		_, err = os.Stat(newPath)
		assert.NoError(t, err)
	})

	t.Run("reject traversal", func(t *testing.T) {
		_, err := NewStore("../outside")
		assert.Error(t, err)
	})
}

func TestSaveReadRemove(t *testing.T) {
	store := setupTestStore(t)

	path, err := store.Save("DOC", "lineage-1", 3, "report.pdf", []byte("version three"))
	require.NoError(t, err)
	assert.Equal(t, "attachments/DOC/lineage-1/3_report.pdf", path)

	content, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "version three", string(content))

	require.NoError(t, store.Remove(path))
	_, err = store.Read(path)
	assert.True(t, os.IsNotExist(err))

	// 空目录被清理，根目录保留
	_, err = os.Stat(filepath.Join(store.BasePath(), "attachments", "DOC"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(store.BasePath(), "attachments"))
	assert.NoError(t, err)

	// 重复删除不报错
	assert.NoError(t, store.Remove(path))
	assert.NoError(t, store.Remove(""))
}

func TestRemoveKeepsSiblings(t *testing.T) {
	store := setupTestStore(t)

	v1, err := store.Save("DOC", "lineage-1", 1, "a.txt", []byte("1"))
	require.NoError(t, err)
	v2, err := store.Save("DOC", "lineage-1", 2, "a.txt", []byte("22"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(v1))
	content, err := store.Read(v2)
	require.NoError(t, err)
	assert.Equal(t, "22", string(content))
}

func TestPathEscapeRejected(t *testing.T) {
	store := setupTestStore(t)

	err := store.Remove("../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideBase)

	_, err = store.Read("../secret")
	assert.ErrorIs(t, err, ErrOutsideBase)
}

func TestSanitizedNames(t *testing.T) {
	store := setupTestStore(t)

	path, err := store.Save("DOC", "lineage-1", 1, "../../evil\x00.txt", []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "attachments/DOC/lineage-1/1_"))
	assert.NotContains(t, path, "..")

	long := strings.Repeat("a", 300) + ".pdf"
	assert.Len(t, safeSegment(long), 200)
	assert.True(t, strings.HasSuffix(safeSegment(long), ".pdf"))
	assert.Equal(t, "unnamed", safeSegment("..."))
	assert.Equal(t, "a_b", safeSegment("a\x00b"))
}

func TestUsage(t *testing.T) {
	store := setupTestStore(t)

	usage, err := store.Usage()
	require.NoError(t, err)
	assert.Zero(t, usage.Files)

	_, err = store.Save("DOC", "l1", 1, "a.bin", make([]byte, 100))
	require.NoError(t, err)
	_, err = store.Save("OPS", "l2", 1, "b.bin", make([]byte, 50))
	require.NoError(t, err)

	usage, err = store.Usage()
	require.NoError(t, err)
	assert.EqualValues(t, 2, usage.Files)
	assert.EqualValues(t, 150, usage.Bytes)
}

func TestConcurrentSaves(t *testing.T) {
	store := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_, err := store.Save("DOC", "lineage", v, "file.txt", []byte("x"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	usage, err := store.Usage()
	require.NoError(t, err)
	assert.EqualValues(t, 20, usage.Files)
}
