package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
	delErr error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string { return "settlement:lock:" + name }

func TestRedisLockAcquireAndRelease(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "settlement:lock:cron")

	require.NoError(t, first.Release(ctx))
	require.Empty(t, store.values)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockLeavesTakenOverLease(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expired and another replica took it.
	store.values["settlement:lock:cron"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "someone-else", store.values["settlement:lock:cron"])
}

func TestRedisLockReleaseErrors(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.ttl)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	store.delErr = errors.New("connection reset")
	require.ErrorContains(t, lock.Release(ctx), "connection reset")

	_, err = NewRedisLock(nil, "cron", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(store, "", time.Minute)
	require.Error(t, err)
}
