package diskcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain waits for every task queued so far to finish.
func drain(exec *SerialExecutor) {
	done := make(chan struct{})
	exec.Execute(func() { close(done) })
	<-done
}

func journalLines(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, journalFile))
	require.NoError(t, err)
	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestJournalRecordsTransitions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exec := NewSerialExecutor()
	t.Cleanup(exec.Close)
	c, err := New(dir, exec)
	require.NoError(t, err)

	w, ok, err := c.Edit("k1")
	require.NoError(t, err)
	require.True(t, ok)

	// The DIRTY line is scheduled before the writer is handed out.
	drain(exec)
	assert.Equal(t, []string{"DIRTY k1"}, journalLines(t, dir))

	_, err = w.Write([]byte("ABC"))
	require.NoError(t, err)
	committed, err := w.Commit()
	require.NoError(t, err)
	require.True(t, committed)

	drain(exec)
	assert.Equal(t, []string{"DIRTY k1", "CLEAN k1 3"}, journalLines(t, dir))
}

func TestRecoverDiscardsUnfinishedEdit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k1.clean"), []byte("A"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k1.tmp"), []byte("D"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalFile), []byte("CLEAN k1 1\nDIRTY k1\n"), 0o600))

	c := newTestCache(t, dir)

	_, ok, err := c.Get("k1")
	require.NoError(t, err)
	assert.False(t, ok, "a key whose last record is DIRTY must not survive")

	_, err = os.Stat(filepath.Join(dir, "k1.clean"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "k1.tmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, c.Count())
}

func TestRecoverDirtyOnlyKeyDeletesTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k2.tmp"), []byte("half"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalFile), []byte("DIRTY k2\n"), 0o600))

	c := newTestCache(t, dir)

	assert.Equal(t, 0, c.Count())
	_, err := os.Stat(filepath.Join(dir, "k2.tmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBackupJournalPromoted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newTestCache(t, dir)
	set(t, c, "k1", "ABC")
	require.NoError(t, c.Close())

	// Simulate a crash between the two renames of a rebuild: only the
	// backup file survives.
	require.NoError(t, os.Rename(filepath.Join(dir, journalFile), filepath.Join(dir, journalFileBackup)))

	c = newTestCache(t, dir)
	r, ok, err := c.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	defer r.Close()
	assert.Equal(t, int64(3), r.Len())

	_, err = os.Stat(filepath.Join(dir, journalFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, journalFileBackup))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestObsoleteBackupJournalDeleted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newTestCache(t, dir)
	set(t, c, "k1", "ABC")
	require.NoError(t, c.Close())

	// A crash after the tmp->journal rename leaves both files; the backup
	// is the obsolete one.
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalFileBackup), []byte("CLEAN stale 9\n"), 0o600))

	c = newTestCache(t, dir)
	got, ok := read(t, c, "k1")
	require.True(t, ok)
	assert.Equal(t, "ABC", got)
	assert.False(t, has(t, c, "stale"))
	_, err := os.Stat(filepath.Join(dir, journalFileBackup))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCorruptJournalSweepsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g1.clean"), []byte("A"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "otherFile.tmp"), []byte("B"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalFile), []byte("CLEAN g1 1\nBOGUS\n"), 0o600))

	c := newTestCache(t, dir)

	assert.Equal(t, 0, c.Count())
	assert.Equal(t, int64(0), c.Size())
	_, err := os.Stat(filepath.Join(dir, "g1.clean"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "otherFile.tmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// A fresh journal is rebuilt and the cache is usable again.
	assert.Empty(t, journalLines(t, dir))
	set(t, c, "k1", "new")
	got, ok := read(t, c, "k1")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestCorruptJournalVariants(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"negative length":    "CLEAN k1 -5\n",
		"bad length":         "CLEAN k1 sixteen\n",
		"missing length":     "CLEAN k1\n",
		"extra token":        "DIRTY k1 7\n",
		"unknown state":      "SHINY k1 3\n",
		"illegal key":        "CLEAN K1! 3\n",
		"empty line":         "CLEAN k1 3\n\n",
		"missing terminator": "CLEAN k1 3",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "k1.clean"), []byte("ABC"), 0o600))
			require.NoError(t, os.WriteFile(filepath.Join(dir, journalFile), []byte(content), 0o600))

			c := newTestCache(t, dir)
			assert.Equal(t, 0, c.Count(), "journal %q must be treated as corrupt", content)
			_, err := os.Stat(filepath.Join(dir, "k1.clean"))
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestReplayKeepsFirstCleanOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	journal := "CLEAN a 1\nCLEAN b 1\nCLEAN a 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.clean"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.clean"), []byte("y"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, journalFile), []byte(journal), 0o600))

	// With room for one entry, the eviction order decides who survives: a
	// keeps its first-appearance position and goes first.
	c := newTestCache(t, dir, WithMaxCount(1))
	c.Flush()

	assert.False(t, has(t, c, "a"))
	assert.True(t, has(t, c, "b"))
}

func TestRebuildCompactsPastThreshold(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exec := NewSerialExecutor()
	t.Cleanup(exec.Close)
	c, err := New(dir, exec)
	require.NoError(t, err)

	// Each set appends a DIRTY and a CLEAN line; 501 sets cross the
	// 1000-line rebuild threshold.
	for range 501 {
		set(t, c, "k1", "v")
	}
	drain(exec)

	lines := journalLines(t, dir)
	assert.LessOrEqual(t, len(lines), rebuildThreshold, "journal should have been compacted")
	assert.Equal(t, "CLEAN k1 1", lines[len(lines)-1])

	require.NoError(t, c.Close())
	c = newTestCache(t, dir)
	got, ok := read(t, c, "k1")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCloseCompactsJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newTestCache(t, dir)
	set(t, c, "a", "1")
	set(t, c, "b", "22")
	set(t, c, "a", "333")
	require.NoError(t, c.Close())

	// Compacted in LRU order: b is now the older entry.
	assert.Equal(t, []string{"CLEAN b 2", "CLEAN a 3"}, journalLines(t, dir))
}
