package cache

import (
	"context"
	"testing"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
)

func TestNewWithoutHostIsNop(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{Port: 6379})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(Nop); !ok {
		t.Fatalf("New without host = %T, want Nop", c)
	}

	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, found, err := c.Get(context.Background(), "k"); err != nil || found {
		t.Errorf("Get = found %t, err %v; want miss", found, err)
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// Port 1 on loopback is never a Redis server.
	if _, err := NewRedis(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 1}); err == nil {
		t.Fatal("NewRedis succeeded against a closed port")
	}
}
