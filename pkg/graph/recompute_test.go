package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/nexuslab/nexus/pkg/leaselock"
)

func TestLocalGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the function", func(t *testing.T) {
		guard := NewLocalGuard()
		ran := false
		err := guard.WithLock(ctx, RecomputeLockKey, func(context.Context) error {
			ran = true
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ran {
			t.Error("function did not run")
		}
	})

	t.Run("second holder gets busy", func(t *testing.T) {
		guard := NewLocalGuard()
		entered := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)

		go func() {
			done <- guard.WithLock(ctx, RecomputeLockKey, func(context.Context) error {
				close(entered)
				<-release
				return nil
			})
		}()
		<-entered

		err := guard.WithLock(ctx, RecomputeLockKey, func(context.Context) error {
			t.Error("second holder must not run")
			return nil
		})
		if !errors.Is(err, leaselock.ErrBusy) {
			t.Errorf("expected ErrBusy, got %v", err)
		}

		close(release)
		if err := <-done; err != nil {
			t.Errorf("first holder failed: %v", err)
		}
	})

	t.Run("different keys do not contend", func(t *testing.T) {
		guard := NewLocalGuard()
		err := guard.WithLock(ctx, "key-a", func(ctx context.Context) error {
			return guard.WithLock(ctx, "key-b", func(context.Context) error {
				return nil
			})
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("function error propagates", func(t *testing.T) {
		guard := NewLocalGuard()
		want := errors.New("boom")
		err := guard.WithLock(ctx, RecomputeLockKey, func(context.Context) error {
			return want
		})
		if !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
	})
}
