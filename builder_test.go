package userpool

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kesh-lab/userpool/tokenstore"
)

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.UserPool.ClientID = ""

	_, err := New().
		WithConfig(cfg).
		WithTransport(&scriptedProvider{}).
		Build()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestBuildRejectsReuse(t *testing.T) {
	builder := New().
		WithConfig(testConfig()).
		WithTransport(&scriptedProvider{})

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := &scriptedProvider{}
	provider.queueInitiate(successResponse(), nil)

	engine, err := New().
		WithConfig(testConfig()).
		WithTransport(provider).
		WithRedis(client).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	result, err := engine.SignInWithPassword(context.Background(), SignInInput{
		Username: "alice",
		Password: "Passw0rd!",
	})
	if err != nil || !result.IsSignedIn {
		t.Fatalf("redis-backed sign-in failed: %+v, %v", result, err)
	}

	// The handoff must have landed in redis under the configured prefix.
	if !mr.Exists("up:ups:alice") {
		t.Fatalf("expected cached session in redis, keys: %v", mr.Keys())
	}

	session, err := engine.store.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if session.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected cached session: %+v", session)
	}
}

func TestBuildDefaultsToMemoryStore(t *testing.T) {
	engine, err := New().
		WithConfig(testConfig()).
		WithTransport(&scriptedProvider{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, ok := engine.store.(*tokenstore.MemoryStore); !ok {
		t.Fatalf("expected memory store fallback, got %T", engine.store)
	}
}
