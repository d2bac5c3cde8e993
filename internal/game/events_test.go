package game_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/labelquest/internal/game"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := game.NewMemoryEventLogger()

	err := logger.LogEvent(context.Background(), game.Event{
		PlayerID:  "p1",
		PlayID:    "play-1",
		EventType: game.EventLabelDropped,
		Data: map[string]any{
			"label": "Mouth",
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != game.EventLabelDropped {
		t.Errorf("EventType = %q, want label_dropped", events[0].EventType)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := game.NewMemoryEventLogger()
	if err := logger.LogEvent(context.Background(), game.Event{PlayerID: "p1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := game.NewPostgresEventLogger(nil)

	err := logger.LogEvent(context.Background(), game.Event{
		PlayerID:  "p1",
		EventType: game.EventTopicSelected,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
	if err := logger.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestEngine_LogsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.SelectTopic(ctx, "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.drop(t, "p1", "Stomach", "point-0")
	if _, err := f.engine.Back(ctx, "p1"); err != nil {
		t.Fatalf("Back() error = %v", err)
	}

	want := []string{game.EventTopicSelected, game.EventLabelDropped, game.EventNavigatedBack}
	got := f.events.Types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	for _, e := range f.events.Events() {
		if e.PlayerID != "p1" || e.PlayID == "" {
			t.Errorf("event %s missing identity: %+v", e.EventType, e)
		}
	}
}
