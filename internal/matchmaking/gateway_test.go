package matchmaking

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/storage"
	"github.com/cubedrop/backend/internal/ticketid"
)

type fakeEngine struct {
	started  []string
	stopped  []string
	startErr error
	stopErr  error
}

func (f *fakeEngine) Start(ctx context.Context, ticketID, playerID string, skill float64) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, ticketID)
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context, ticketID string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, ticketID)
	return nil
}

func newGateway(t *testing.T, engine Engine) (*Gateway, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewGateway(engine, store), store
}

func TestSubmitPersistsTicket(t *testing.T) {
	engine := &fakeEngine{}
	gw, store := newGateway(t, engine)
	ctx := context.Background()

	tid, err := gw.Submit(ctx, "c1", "alice", 12.5)
	require.NoError(t, err)
	assert.Equal(t, ticketid.Encode("c1"), tid)
	assert.Equal(t, []string{tid}, engine.started)

	ticket, err := store.GetTicket(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", ticket.PlayerID)
	assert.Equal(t, 12.5, ticket.Skill)
}

func TestSubmitEngineFailurePersistsNothing(t *testing.T) {
	engine := &fakeEngine{startErr: domain.ErrEngineUnavailable}
	gw, store := newGateway(t, engine)
	ctx := context.Background()

	_, err := gw.Submit(ctx, "c1", "alice", 0)
	assert.True(t, errors.Is(err, domain.ErrEngineUnavailable))

	_, err = store.GetTicket(ctx, "c1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSubmitTwiceSupersedes(t *testing.T) {
	engine := &fakeEngine{}
	gw, store := newGateway(t, engine)
	ctx := context.Background()

	first, err := gw.Submit(ctx, "c1", "alice", 1)
	require.NoError(t, err)
	second, err := gw.Submit(ctx, "c1", "alice", 2)
	require.NoError(t, err)

	// Same deterministic id, old engine ticket stopped, one live row
	assert.Equal(t, first, second)
	assert.Equal(t, []string{first}, engine.stopped)

	ticket, err := store.GetTicket(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, ticket.Skill)
}

func TestCancelRemovesTicket(t *testing.T) {
	engine := &fakeEngine{}
	gw, store := newGateway(t, engine)
	ctx := context.Background()

	tid, err := gw.Submit(ctx, "c1", "alice", 0)
	require.NoError(t, err)

	require.NoError(t, gw.Cancel(ctx, "c1"))
	assert.Contains(t, engine.stopped, tid)

	_, err = store.GetTicket(ctx, "c1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCancelWithoutTicketIsNoop(t *testing.T) {
	engine := &fakeEngine{stopErr: domain.ErrEngineUnavailable}
	gw, _ := newGateway(t, engine)

	assert.NoError(t, gw.Cancel(context.Background(), "c1"))
}
