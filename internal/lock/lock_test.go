package lock

import (
	"context"
	"testing"
	"time"
)

func TestInProcessLockerAcquireBlocksSecondHolder(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()

	token, err := l.Acquire(ctx, "position:u1:BTC+USDT", time.Minute)
	if err != nil {
		t.Fatalf("expected first acquire to succeed, got %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	if _, err := l.Acquire(ctx, "position:u1:BTC+USDT", time.Minute); err != ErrLockHeld {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}
}

func TestInProcessLockerReleaseAllowsReacquire(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()
	key := "position:u1:BTC+USDT"

	token, _ := l.Acquire(ctx, key, time.Minute)
	if err := l.Release(ctx, key, token); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if _, err := l.Acquire(ctx, key, time.Minute); err != nil {
		t.Errorf("expected reacquire to succeed after release, got %v", err)
	}
}

func TestInProcessLockerExpiresAfterTTL(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()
	key := "position:u1:BTC+USDT"

	if _, err := l.Acquire(ctx, key, 5*time.Millisecond); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	time.Sleep(15 * time.Millisecond)

	if _, err := l.Acquire(ctx, key, time.Minute); err != nil {
		t.Errorf("expected acquire to succeed after TTL expiry, got %v", err)
	}
}

func TestInProcessLockerRefreshRejectsWrongToken(t *testing.T) {
	l := NewInProcessLocker()
	ctx := context.Background()
	key := "position:u1:BTC+USDT"

	l.Acquire(ctx, key, time.Minute)
	if err := l.Refresh(ctx, key, "wrong-token", time.Minute); err != ErrLockHeld {
		t.Errorf("expected ErrLockHeld for wrong token, got %v", err)
	}
}
