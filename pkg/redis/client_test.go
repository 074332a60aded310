package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "2", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose, ok=%v err=%v", ok, err)
	}
	v, err := client.Get(ctx, "k")
	if err != nil || v != "1" {
		t.Fatalf("expected original value, got %q err=%v", v, err)
	}
}

func TestGetMissingKeyIsNil(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	_, err := client.Get(context.Background(), "missing")
	if !IsNil(err) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
	if IsNil(fmt.Errorf("other")) {
		t.Fatal("IsNil should only match redis.Nil")
	}
}

func TestDelRemovesKey(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	if err := client.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !IsNil(err) {
		t.Fatalf("expected key to be gone, got %v", err)
	}
}

func TestExpireResetsTTLOfExistingKey(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}
	if _, err := client.SetNX(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("setnx failed: %v", err)
	}
	ok, err := client.Expire(ctx, "k", time.Hour)
	if err != nil || !ok {
		t.Fatalf("expire existing key: ok=%v err=%v", ok, err)
	}
	if store.ttls["k"] != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", store.ttls["k"])
	}
	if ok, _ := client.Expire(ctx, "missing", time.Hour); ok {
		t.Fatal("expire on a missing key should report false")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("stripe_webhook", "evt_1"); got != "vv:idempotency:stripe_webhook:evt_1" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.CacheKey("plan_catalog", "price_1"); got != "vv:cache:plan_catalog:price_1" {
		t.Fatalf("unexpected cache key %s", got)
	}
	if got := client.LockKey("verify-subscriptions"); got != "vv:lock:verify-subscriptions" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "vv:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/2",
		PoolSize:    7,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if _, ok := m.data[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}
