package history

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

func record(id string) proto.HistoryRecord {
	return proto.HistoryRecord{ID: id, Prompt: "prompt " + id, Success: true, Engine: "claude"}
}

func ids(records []proto.HistoryRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestStore_AppendEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir(), 3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append("demo", record(fmt.Sprint(i))))
		require.LessOrEqual(t, len(s.List("demo", 0)), 3)
	}

	require.Equal(t, []string{"5", "4", "3"}, ids(s.List("demo", 0)))
	require.Equal(t, []string{"5", "4"}, ids(s.List("demo", 2)))

	_, ok := s.Get("demo", "1")
	require.False(t, ok)
	rec, ok := s.Get("demo", "4")
	require.True(t, ok)
	require.Equal(t, "prompt 4", rec.Prompt)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, NewStore(dir, 10).Append("demo", record("a")))
	require.NoError(t, NewStore(dir, 10).Append("other", record("b")))

	s := NewStore(dir, 10)
	require.Equal(t, []string{"demo", "other"}, s.Projects())
	require.Equal(t, []string{"a"}, ids(s.List("demo", 0)))
}

func TestStore_CorruptOrMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(dir, 10)
	require.Empty(t, s.List("demo", 0))

	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))
	require.Empty(t, s.List("demo", 0))
	require.Empty(t, s.Projects())

	require.NoError(t, s.Append("demo", record("x")))
	require.Equal(t, []string{"x"}, ids(s.List("demo", 0)))
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir(), 10)
	require.NoError(t, s.Append("demo", record("a")))
	require.NoError(t, s.Append("keep", record("b")))

	require.NoError(t, s.Clear("demo"))
	require.NoError(t, s.Clear("missing"))
	require.Empty(t, s.List("demo", 0))
	require.Equal(t, []string{"keep"}, s.Projects())
}

func TestStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir(), 100)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.Append("demo", record(fmt.Sprint(i))))
		}()
	}
	wg.Wait()
	require.Len(t, s.List("demo", 0), 20)
}

func TestStore_GetReturnsLatestTurn(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir(), 10)
	first := record("sess")
	first.Prompt = "first"
	second := record("sess")
	second.Prompt = "second"
	require.NoError(t, s.Append("demo", first))
	require.NoError(t, s.Append("demo", record("other")))
	require.NoError(t, s.Append("demo", second))

	rec, ok := s.Get("demo", "sess")
	require.True(t, ok)
	require.Equal(t, "second", rec.Prompt)
}

func TestStore_UnreadableFileIsNotOverwritten(t *testing.T) {
	t.Parallel()

	// A directory where the file should be makes every read fail.
	s := NewStore(t.TempDir(), 10)
	require.NoError(t, os.Mkdir(s.Path(), 0o700))
	require.Error(t, s.Append("demo", record("1")))
	require.Error(t, s.Clear("demo"))
	require.Empty(t, s.List("demo", 0))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
