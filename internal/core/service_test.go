package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), openTestDB(t), fastConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	seeded, err := svc.Contacts.Seed(ctx, 3)
	require.NoError(t, err)

	ar, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ar.Count)

	got, err := ar.Contacts()
	require.NoError(t, err)
	assert.Equal(t, seeded, got)

	again, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Same(t, ar, again)
}

func TestService_Ping(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestStartArchiveScheduler(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc.Contacts, "Ann", "One", "a@x.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.StartArchiveScheduler(ctx, 200*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		return svc.Archiver.Archive() != nil
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestStartArchiveScheduler_Disabled(t *testing.T) {
	svc := newTestService(t)

	svc.StartArchiveScheduler(context.Background(), 0)

	assert.Equal(t, StatusWaiting, svc.Archiver.Status())
}
