package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/storage"
)

func setup(t *testing.T) (*Recorder, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreatePlayer(ctx, &domain.Player{PlayerID: "alice", PasswordHash: "h"}))
	require.NoError(t, store.CreatePlayer(ctx, &domain.Player{PlayerID: "bob", PasswordHash: "h"}))
	require.NoError(t, store.CreateMatch(ctx, &domain.MatchRecord{
		TaskID:  "t1",
		MatchID: "m1",
		Status:  domain.MatchStatusRunning,
		Players: []domain.MatchPlayer{
			{ConnectionID: "c1", TicketID: "6331", PlayerID: "alice"},
			{ConnectionID: "c2", TicketID: "6332", PlayerID: "bob"},
		},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	return New(store, []int64{100, 10, 500}), store
}

func TestAchievementsPureFunction(t *testing.T) {
	r := New(nil, []int64{100, 10, 500})

	assert.Equal(t, []int64{}, r.Achievements(9))
	assert.Equal(t, []int64{10}, r.Achievements(10))
	assert.Equal(t, []int64{10, 100}, r.Achievements(250))
	assert.Equal(t, []int64{10, 100, 500}, r.Achievements(500))
}

func TestApplyUpdatesTotals(t *testing.T) {
	r, store := setup(t)
	ctx := context.Background()

	applied, err := r.Apply(ctx, "t1", &domain.MatchResult{Players: []domain.PlayerResult{
		{PlayerID: "alice", ScoreDelta: 120},
		{PlayerID: "bob", ScoreDelta: 30},
	}})
	require.NoError(t, err)
	assert.True(t, applied)

	alice, err := store.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(120), alice.TotalScore)
	assert.Equal(t, int64(1), alice.MatchCount)
	assert.Equal(t, []int64{10, 100}, alice.Achievements)

	bob, err := store.GetPlayer(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(30), bob.TotalScore)
	assert.Equal(t, []int64{10}, bob.Achievements)
}

func TestApplyIdempotent(t *testing.T) {
	r, store := setup(t)
	ctx := context.Background()

	result := &domain.MatchResult{Players: []domain.PlayerResult{{PlayerID: "alice", ScoreDelta: 50}}}

	applied, err := r.Apply(ctx, "t1", result)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = r.Apply(ctx, "t1", result)
	require.NoError(t, err)
	assert.False(t, applied)

	alice, err := store.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), alice.TotalScore)
	assert.Equal(t, int64(1), alice.MatchCount)
	assert.Equal(t, []int64{10}, alice.Achievements)
}

func TestApplySkipsNonParticipants(t *testing.T) {
	r, store := setup(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePlayer(ctx, &domain.Player{PlayerID: "mallory", PasswordHash: "h"}))

	applied, err := r.Apply(ctx, "t1", &domain.MatchResult{Players: []domain.PlayerResult{
		{PlayerID: "alice", ScoreDelta: 10},
		{PlayerID: "mallory", ScoreDelta: 9999},
	}})
	require.NoError(t, err)
	assert.True(t, applied)

	mallory, err := store.GetPlayer(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(0), mallory.TotalScore)
	assert.Equal(t, int64(0), mallory.MatchCount)
}

func TestApplyUnknownMatch(t *testing.T) {
	r, _ := setup(t)

	_, err := r.Apply(context.Background(), "missing", &domain.MatchResult{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
