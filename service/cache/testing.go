package cache

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

const defaultTestRedisURL = "redis://localhost:6380/15"

func testRedisURL() string {
	if u := os.Getenv("TEST_REDIS_URL"); u != "" {
		return u
	}
	return defaultTestRedisURL
}

// NewTestClient connects to the test Redis instance and flushes its database
// when the test ends.
func NewTestClient(t *testing.T) *redis.Client {
	t.Helper()

	rdb, err := Connect(context.Background(), testRedisURL())
	if err != nil {
		t.Fatalf("failed to connect to test redis: %v", err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return rdb
}

// SkipIfNoTestRedis skips the test if the test Redis instance is not available.
func SkipIfNoTestRedis(t *testing.T) {
	t.Helper()

	if os.Getenv("SKIP_REDIS_TESTS") != "" {
		t.Skip("Skipping redis test (SKIP_REDIS_TESTS is set)")
	}

	rdb, err := Connect(context.Background(), testRedisURL())
	if err != nil {
		t.Skipf("Skipping redis test: %v", err)
	}
	rdb.Close()
}
