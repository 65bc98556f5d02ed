package jobs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/models"
)

func TestProgressSink_ReadSinceReturnsOnlyNewChunks(t *testing.T) {
	sink := NewProgressSink(0)
	sink.Append("one")
	sink.Append("two")

	chunks, cursor, err := sink.ReadSince(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, models.Texts(chunks))
	assert.Equal(t, uint64(2), cursor)

	sink.Append("three")
	chunks, cursor, err = sink.ReadSince(cursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"three"}, models.Texts(chunks))
	assert.Equal(t, uint64(3), cursor)

	// Nothing new: same cursor, empty result
	chunks, again, err := sink.ReadSince(cursor)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, cursor, again)
}

func TestProgressSink_SameCursorReadsSameChunks(t *testing.T) {
	sink := NewProgressSink(0)
	sink.Append("a")

	first, c1, err := sink.ReadSince(0)
	require.NoError(t, err)
	second, c2, err := sink.ReadSince(0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, c1, c2)
}

func TestProgressSink_CursorBeyondEndIsInvalid(t *testing.T) {
	sink := NewProgressSink(0)
	sink.Append("a")

	_, _, err := sink.ReadSince(5)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestProgressSink_EvictsOldestBeyondCeiling(t *testing.T) {
	sink := NewProgressSink(10)
	sink.Append("aaaa")
	sink.Append("bbbb")
	sink.Append("cccc") // 12 bytes > 10: "aaaa" goes

	chunks, cursor, err := sink.ReadSince(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb", "cccc"}, models.Texts(chunks))
	assert.Equal(t, uint64(1), chunks[0].Seq)
	assert.Equal(t, uint64(3), cursor)

	stats := sink.Stats()
	assert.Equal(t, uint64(3), stats.Written)
	assert.Equal(t, 2, stats.Retained)
	assert.Equal(t, 8, stats.RetainedBytes)
	assert.Equal(t, uint64(1), stats.EvictedChunks)
	assert.Equal(t, int64(4), stats.EvictedBytes)
}

func TestProgressSink_EvictedChunksAreNeverResent(t *testing.T) {
	sink := NewProgressSink(4)
	sink.Append("1111")
	_, cursor, err := sink.ReadSince(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cursor)

	sink.Append("2222") // evicts "1111"
	sink.Append("3333") // evicts "2222" before anyone read it

	chunks, next, err := sink.ReadSince(cursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"3333"}, models.Texts(chunks))
	assert.Equal(t, uint64(3), next)

	chunks, _, err = sink.ReadSince(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"3333"}, models.Texts(chunks))
}

func TestProgressSink_NewestChunkKeptEvenWhenOversized(t *testing.T) {
	sink := NewProgressSink(4)
	sink.Append("0123456789")

	chunks, _, err := sink.ReadSince(0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "0123456789", chunks[0].Text)
}

func TestProgressSink_NoLossUnderConcurrentDrain(t *testing.T) {
	const total = 2000
	sink := NewProgressSink(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			sink.Append(fmt.Sprintf("c%d", i))
		}
	}()

	var got []string
	var cursor uint64
	for len(got) < total {
		chunks, next, err := sink.ReadSince(cursor)
		require.NoError(t, err)
		got = append(got, models.Texts(chunks)...)
		cursor = next
	}
	wg.Wait()

	require.Len(t, got, total)
	for i, text := range got {
		assert.Equal(t, fmt.Sprintf("c%d", i), text)
	}
}
