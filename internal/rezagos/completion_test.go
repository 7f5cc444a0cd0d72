package rezagos

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCompletionStoreSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store := NewCompletionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err := store.MarkCompleted(ctx, 42); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	// A fresh store against the same backend must still see the entry.
	reloaded := NewCompletionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	done, err := reloaded.Completed(ctx)
	if err != nil {
		t.Fatalf("load completed: %v", err)
	}
	if !done[42] {
		t.Fatal("completion must survive a new store instance")
	}
}

func TestReopenRemovesTask(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	store := NewCompletionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	if err := store.MarkCompleted(ctx, 7); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := store.Reopen(ctx, 7); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	done, err := store.Completed(ctx)
	if err != nil {
		t.Fatalf("load completed: %v", err)
	}
	if done[7] {
		t.Fatal("reopened task must leave the completed set")
	}
}
