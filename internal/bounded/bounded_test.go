package bounded

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-sniper/internal/domain"
)

func TestCall_ReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), time.Second, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestCall_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	_, err := Call(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestCall_TimesOutEvenIfCalleeIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Call(context.Background(), 20*time.Millisecond, func(context.Context) (bool, error) {
		<-release
		return true, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, domain.ErrTransient) {
		t.Error("timeout should be transient")
	}
	if time.Since(start) > time.Second {
		t.Error("Call did not return promptly")
	}
}

func TestCall_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
