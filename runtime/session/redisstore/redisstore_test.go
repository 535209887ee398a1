package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return New(rdb, "apron:session:")
}

func TestLockThenLockAgainFailsWithAlreadyLocked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = s.Lock(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, session.ErrAlreadyLocked)
}

func TestPutRejectsStaleToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	err = s.Put(ctx, state.New("s1", "oil_spill", time.Now()), "wrong-token")
	assert.ErrorIs(t, err, session.ErrLockExpired)
}

func TestPutThenGetRoundTripsSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	sess := state.New("s1", "oil_spill", time.Now())
	sess.FSMState = "P1_INFO_GATHERING"
	require.NoError(t, s.Put(ctx, sess, token))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "P1_INFO_GATHERING", got.FSMState)
}

func TestGetReturnsNotFoundWhenMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestUnlockIsNoOpWithStaleToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, s.Unlock(ctx, "s1", "wrong-token"))

	// lock is still held since the wrong-token unlock was a no-op
	_, err = s.Lock(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, session.ErrAlreadyLocked)

	require.NoError(t, s.Unlock(ctx, "s1", token))
	_, err = s.Lock(ctx, "s1", time.Minute)
	assert.NoError(t, err)
}

func TestDeleteRemovesSessionAndLock(t *testing.T) {
	s := newTestStore(t)
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
