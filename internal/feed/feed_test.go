package feed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

func TestVoteAcceptedPrependsAndMasks(t *testing.T) {
	f := New(memory.New())
	ctx := context.Background()

	require.NoError(t, f.VoteAccepted(ctx, "p1", "yes", "146.103.108.202", "AU", 1000))
	require.NoError(t, f.VoteAccepted(ctx, "p2", "no", "2a13:ef41:a000::1", "DE", 2000))

	entries, err := f.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Más reciente primero
	assert.Equal(t, "p2", entries[0].Poll)
	assert.Equal(t, "2a13:ef41:aXXX:XXXX:XXXX:XXXX", entries[0].IP)
	assert.Equal(t, "p1", entries[1].Poll)
	assert.Equal(t, "146.103.10X.XXX", entries[1].IP)
}

func TestVoteAcceptedCapsEntries(t *testing.T) {
	f := New(memory.New())
	ctx := context.Background()

	for i := 0; i < maxEntries+20; i++ {
		require.NoError(t, f.VoteAccepted(ctx, fmt.Sprintf("p%d", i), "yes", "1.2.3.4", "XX", int64(i)))
	}

	entries, err := f.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, entries, maxEntries)
	assert.Equal(t, fmt.Sprintf("p%d", maxEntries+19), entries[0].Poll)
}

func TestRecentEmptyStore(t *testing.T) {
	f := New(memory.New())
	entries, err := f.Recent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
