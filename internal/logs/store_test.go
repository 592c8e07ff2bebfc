package logs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStoreAdd tests adding entries and reading them back in order
func TestStoreAdd(t *testing.T) {
	store := NewStore(100)

	store.Add("reading plot files")
	store.Add("deadline found: 1337")
	store.Add("nonce submitted")

	lines := store.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "reading plot files", lines[0])
	assert.Equal(t, "deadline found: 1337", lines[1])
	assert.Equal(t, "nonce submitted", lines[2])
}

// TestStoreBounded tests that the buffer drops the oldest entries at capacity
func TestStoreBounded(t *testing.T) {
	store := NewStore(5)

	for i := 0; i < 8; i++ {
		store.Add(fmt.Sprintf("line %d", i))
	}

	lines := store.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, "line 3", lines[0])
	assert.Equal(t, "line 7", lines[4])
}

// TestStoreNewBlock tests that a new block clears the buffer
func TestStoreNewBlock(t *testing.T) {
	store := NewStore(100)

	store.NewBlock(500000)
	store.Add("scanning")
	entry := store.Add("done")
	assert.Equal(t, uint64(500000), entry.BlockHeight)
	assert.Equal(t, 2, store.Len())

	store.NewBlock(500001)
	assert.Equal(t, uint64(500001), store.BlockHeight())
	assert.Empty(t, store.Lines())
}

// TestStoreSequence tests that sequence numbers grow monotonically and that
// LinesWithSeq takes a consistent snapshot
func TestStoreSequence(t *testing.T) {
	store := NewStore(100)

	a := store.Add("first")
	b := store.Add("second")
	assert.Equal(t, uint64(1), a.Seq)
	assert.Equal(t, uint64(2), b.Seq)

	lines, seq := store.LinesWithSeq()
	assert.Len(t, lines, 2)
	assert.Equal(t, b.Seq, seq)

	// The counter survives a block change even though the buffer is cleared.
	store.NewBlock(500001)
	c := store.Add("third")
	assert.Equal(t, uint64(3), c.Seq)

	_, seq = store.LinesWithSeq()
	assert.Equal(t, c.Seq, seq)
}

// TestStoreLevelDetection tests log level classification
func TestStoreLevelDetection(t *testing.T) {
	store := NewStore(10)

	assert.Equal(t, LevelError, store.Add("submission failed").Level)
	assert.Equal(t, LevelWarn, store.Add("warning: slow plot read").Level)
	assert.Equal(t, LevelDebug, store.Add("debug: nonce range").Level)
	assert.Equal(t, LevelInfo, store.Add("block 500000 started").Level)
}

// TestStoreGetAllIsCopy tests that readers get an independent snapshot
func TestStoreGetAllIsCopy(t *testing.T) {
	store := NewStore(10)
	store.Add("original")

	entries := store.GetAll()
	entries[0].Content = "mutated"

	assert.Equal(t, "original", store.GetAll()[0].Content)
}

// TestStoreConcurrent tests concurrent writers and readers
func TestStoreConcurrent(t *testing.T) {
	store := NewStore(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Add(fmt.Sprintf("writer %d line %d", n, j))
				store.Lines()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 500, store.Len())
}
