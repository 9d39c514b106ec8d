package numbering

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	addr := os.Getenv("POS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set POS_TEST_REDIS_ADDR to run redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("POS_TEST_REDIS_PASSWORD")})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 2*time.Second)
	ctx := context.Background()
	key := "test:" + time.Now().Format("150405.000000")

	release, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(shortCtx, key); err == nil {
		t.Fatalf("expected second acquire to fail while held")
	} else if !errors.Is(err, ErrBusy) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}

	release()
	release2, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}
