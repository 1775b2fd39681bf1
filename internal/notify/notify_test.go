package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedrop/backend/internal/domain"
)

type fakeChannel struct {
	sent    map[string][]byte
	closed  []string
	failFor map[string]bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{sent: map[string][]byte{}, failFor: map[string]bool{}}
}

func (f *fakeChannel) Send(ctx context.Context, connectionID string, data []byte) error {
	if f.failFor[connectionID] {
		return errors.New("gone")
	}
	f.sent[connectionID] = data
	return nil
}

func (f *fakeChannel) Close(ctx context.Context, connectionID string) error {
	if f.failFor[connectionID] {
		return errors.New("gone")
	}
	f.closed = append(f.closed, connectionID)
	return nil
}

func TestNotifyOne(t *testing.T) {
	ch := newFakeChannel()
	n := New(ch)

	err := n.NotifyOne(context.Background(), "c1", domain.StatusPayload{Status: domain.StatusServerStarted, IP: "1.2.3.4"})
	require.NoError(t, err)

	var got domain.StatusPayload
	require.NoError(t, json.Unmarshal(ch.sent["c1"], &got))
	assert.Equal(t, domain.StatusServerStarted, got.Status)
	assert.Equal(t, "1.2.3.4", got.IP)
}

func TestNotifyOneFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.failFor["c1"] = true

	err := New(ch).NotifyOne(context.Background(), "c1", domain.StatusPayload{Status: domain.StatusMatchFailed})
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailed))
}

func TestNotifyManyContinuesPastFailures(t *testing.T) {
	ch := newFakeChannel()
	ch.failFor["c2"] = true

	failed := New(ch).NotifyMany(context.Background(), []string{"c1", "c2", "c3"}, domain.StatusPayload{Status: domain.StatusMatchFound})
	assert.Equal(t, 1, failed)
	assert.Contains(t, ch.sent, "c1")
	assert.Contains(t, ch.sent, "c3")
}

func TestCloseOneTolerant(t *testing.T) {
	ch := newFakeChannel()
	ch.failFor["c1"] = true

	n := New(ch)
	n.CloseOne(context.Background(), "c1") // must not panic or escalate
	n.CloseOne(context.Background(), "c2")
	assert.Equal(t, []string{"c2"}, ch.closed)
}
