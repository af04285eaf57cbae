package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tablemind/rulebook-backend/internal/domain"
)

func TestMemoryHistoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryHistoryStore(20)
	ctx := context.Background()

	turns, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("new session should be empty")
	}

	if err := store.Append(ctx, "s1",
		domain.Turn{Role: domain.RoleUser, Content: "q1"},
		domain.Turn{Role: domain.RoleAssistant, Content: "a1"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, _ = store.Get(ctx, "s1")
	if len(turns) != 2 || turns[0].Content != "q1" || turns[1].Content != "a1" {
		t.Fatalf("turns: %+v", turns)
	}

	// Sessions are isolated.
	other, _ := store.Get(ctx, "s2")
	if len(other) != 0 {
		t.Fatalf("session leak: %+v", other)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	turns, _ = store.Get(ctx, "s1")
	if len(turns) != 0 {
		t.Fatalf("cleared session not empty: %+v", turns)
	}
}

func TestMemoryHistoryStoreCapsTurns(t *testing.T) {
	store := NewMemoryHistoryStore(4)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := store.Append(ctx, "s1", domain.Turn{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	turns, _ := store.Get(ctx, "s1")
	if len(turns) != 4 {
		t.Fatalf("turns: want=4 got=%d", len(turns))
	}
	if turns[0].Content != "m2" || turns[3].Content != "m5" {
		t.Fatalf("oldest turns should be evicted: %+v", turns)
	}
}

func TestMemoryHistoryStoreReturnsCopy(t *testing.T) {
	store := NewMemoryHistoryStore(20)
	ctx := context.Background()

	_ = store.Append(ctx, "s1", domain.Turn{Role: domain.RoleUser, Content: "original"})
	turns, _ := store.Get(ctx, "s1")
	turns[0].Content = "mutated"

	again, _ := store.Get(ctx, "s1")
	if again[0].Content != "original" {
		t.Fatalf("store handed out its internal slice")
	}
}

func TestMemoryHistoryStoreConcurrentAppends(t *testing.T) {
	store := NewMemoryHistoryStore(1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = store.Append(ctx, "s1", domain.Turn{
					Role:    domain.RoleUser,
					Content: fmt.Sprintf("g%d-m%d", n, j),
				})
			}
		}(i)
	}
	wg.Wait()

	turns, _ := store.Get(ctx, "s1")
	if len(turns) != 100 {
		t.Fatalf("turns: want=100 got=%d", len(turns))
	}
}
