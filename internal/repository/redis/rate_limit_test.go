package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRepository(t *testing.T) (*miniredis.Miniredis, *RateLimitRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "ratelimit", TTL: time.Hour})
	return mr, repo
}

func TestRateLimitRepository_RecordAndCount(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Minute, 2 * time.Minute} {
		if err := repo.RecordAttempt(ctx, "password_reset_request:user@example.com", base.Add(offset)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "password_reset_request:user@example.com", 10*time.Minute, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}

	// Attempts outside the window are not counted.
	count, err = repo.CountAttempts(ctx, "password_reset_request:user@example.com", 90*time.Second, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 attempts inside a 90s window, got %d", count)
	}
}

func TestRateLimitRepository_TrimWindow(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Minute, 2 * time.Minute} {
		if err := repo.RecordAttempt(ctx, "key", base.Add(offset)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	if err := repo.TrimWindow(ctx, "key", 90*time.Second, base.Add(2*time.Minute)); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "key", time.Hour, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected the oldest attempt trimmed, got %d remaining", count)
	}
}

func TestRateLimitRepository_OldestAttempt(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, found, err := repo.OldestAttempt(ctx, "key", time.Hour, base)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if found {
		t.Fatalf("expected no attempt for an empty key")
	}

	for _, offset := range []time.Duration{2 * time.Minute, time.Minute, 3 * time.Minute} {
		if err := repo.RecordAttempt(ctx, "key", base.Add(offset)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	oldest, found, err := repo.OldestAttempt(ctx, "key", time.Hour, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected an oldest attempt")
	}
	if oldest.UnixNano() != base.Add(time.Minute).UnixNano() {
		t.Fatalf("expected oldest %v, got %v", base.Add(time.Minute), oldest)
	}
}

func TestRateLimitRepository_Reset(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if err := repo.RecordAttempt(ctx, "password_reset_guess:acct-1", base); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if err := repo.Reset(ctx, "password_reset_guess:acct-1"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "password_reset_guess:acct-1", time.Hour, base)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected an empty window after reset, got %d", count)
	}
	if mr.Exists("ratelimit:password_reset_guess:acct-1") {
		t.Fatalf("expected the key deleted")
	}
}

func TestRateLimitRepository_AppliesTTL(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.RecordAttempt(ctx, "key", time.Now()); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	ttl := mr.TTL("ratelimit:key")
	if ttl != time.Hour {
		t.Fatalf("expected 1h TTL on the key, got %v", ttl)
	}
}
