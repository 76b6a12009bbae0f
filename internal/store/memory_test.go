package store

import (
	"context"
	"testing"
	"time"

	"github.com/soyeahso/triage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_RemovesExpired(t *testing.T) {
	for _, b := range backends {
		if b.name == "redis" {
			continue
		}
		t.Run(b.name, func(t *testing.T) {
			s, advance := b.open(t, Options{SessionTTL: time.Minute, EmailTTL: time.Minute})
			ctx := context.Background()

			for _, id := range []string{"a", "b"} {
				_, _, err := s.EnsureSession(ctx, id)
				require.NoError(t, err)
			}
			require.NoError(t, s.MarkEmailProcessed(ctx, "m1"))

			n, err := s.Sweep(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			advance(2 * time.Minute)
			n, err = s.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			processed, err := s.IsEmailProcessed(ctx, "m1")
			require.NoError(t, err)
			assert.False(t, processed)
		})
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore(Options{}, logging.New(nil, "silent"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.EnsureSession(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)

	// The lock is released after an error.
	_, _, err = s.EnsureSession(context.Background(), "s1")
	assert.NoError(t, err)
}

func TestNew_Backends(t *testing.T) {
	log := logging.New(nil, "silent")
	ctx := context.Background()

	s, err := New(ctx, Config{Backend: BackendMemory}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, Config{Backend: BackendSQLite, SQLitePath: ":memory:"}, log)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, Config{Backend: BackendRedis, RedisURL: "not a url"}, log)
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: "etcd"}, log)
	assert.ErrorContains(t, err, "unknown session store")
}
