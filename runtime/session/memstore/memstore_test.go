package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/state"
)

func TestPutRequiresValidLockToken(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess := state.New("s1", "oil_spill", time.Now())

	err := s.Put(ctx, sess, "bogus-token")
	assert.ErrorIs(t, err, session.ErrLockExpired)

	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, sess, token))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
}

func TestLockRejectsConcurrentHolder(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	_, err = s.Lock(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, session.ErrAlreadyLocked)
}

func TestUnlockAllowsReacquisition(t *testing.T) {
	s := New()
	ctx := context.Background()

	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Unlock(ctx, "s1", token))

	_, err = s.Lock(ctx, "s1", time.Minute)
	assert.NoError(t, err)
}

func TestLockExpiresAfterTTL(t *testing.T) {
	s := New()
	fixed := time.Now()
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := s.Lock(ctx, "s1", time.Second)
	require.NoError(t, err)

	s.now = func() time.Time { return fixed.Add(2 * time.Second) }
	_, err = s.Lock(ctx, "s1", time.Second)
	assert.NoError(t, err)
}

func TestGetReturnsPrivateCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	sess := state.New("s1", "oil_spill", time.Now())
	require.NoError(t, s.Put(ctx, sess, token))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	got.Incident["flight_no"] = "CCA1234"

	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, again.Incident, "flight_no")
}

func TestDeleteRemovesSessionAndLock(t *testing.T) {
	s := New()
	ctx := context.Background()
	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, state.New("s1", "oil_spill", time.Now()), token))

	require.NoError(t, s.Delete(ctx, "s1"))

	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = s.Lock(ctx, "s1", time.Minute)
	assert.NoError(t, err)
}
