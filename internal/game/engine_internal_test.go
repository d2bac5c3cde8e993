package game

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/p-n-ai/labelquest/internal/catalog"
)

func (e *Engine) lockEntries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.locks)
}

func TestEngine_LockEntriesReleasedWhenIdle(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	e, err := NewEngine(EngineConfig{Catalog: cat})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 20 {
		playerID := fmt.Sprintf("p%d", i%5)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.SelectTopic(ctx, playerID, "digestive"); err != nil {
				t.Errorf("SelectTopic(%s) error = %v", playerID, err)
			}
			if _, err := e.Snapshot(ctx, playerID); err != nil {
				t.Errorf("Snapshot(%s) error = %v", playerID, err)
			}
		}()
	}
	wg.Wait()

	if n := e.lockEntries(); n != 0 {
		t.Errorf("lock entries after all players went idle = %d, want 0", n)
	}
}

func TestEngine_LockSerializesOnePlayer(t *testing.T) {
	e := &Engine{locks: make(map[string]*playerLock)}

	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := e.lock("p1")
			defer unlock()
			counter++
		}()
	}

	unlock := e.lock("p1")
	if n := e.lockEntries(); n != 1 {
		t.Errorf("lock entries while held = %d, want 1", n)
	}
	unlock()

	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := e.lockEntries(); n != 0 {
		t.Errorf("lock entries = %d, want 0", n)
	}
}
