package game_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/game"
	"github.com/p-n-ai/labelquest/internal/notify"
	"github.com/p-n-ai/labelquest/internal/placement"
	"github.com/p-n-ai/labelquest/internal/progression"
)

type fixture struct {
	engine   *game.Engine
	sched    *progression.ManualScheduler
	progress *progression.MemoryStore
	events   *game.MemoryEventLogger
	channel  *notify.MockChannel
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}

	f := fixture{
		sched:    progression.NewManualScheduler(),
		progress: progression.NewMemoryStore(),
		events:   game.NewMemoryEventLogger(),
		channel:  &notify.MockChannel{},
	}
	gw := notify.NewGateway()
	gw.Register("mock", f.channel)

	f.engine, err = game.NewEngine(game.EngineConfig{
		Catalog:   cat,
		Progress:  f.progress,
		Events:    f.events,
		Notifier:  gw,
		Scheduler: f.sched,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return f
}

func (f fixture) snapshot(t *testing.T, playerID string) game.Snapshot {
	t.Helper()
	snap, err := f.engine.Snapshot(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

func (f fixture) drop(t *testing.T, playerID, label, targetID string) game.DropResult {
	t.Helper()
	res, err := f.engine.Drop(context.Background(), playerID, label, targetID)
	if err != nil {
		t.Fatalf("Drop(%q, %q) error = %v", label, targetID, err)
	}
	return res
}

// solve places every expected label of the active level.
func (f fixture) solve(t *testing.T, playerID string) {
	t.Helper()
	for _, target := range f.snapshot(t, playerID).Targets {
		f.drop(t, playerID, target.ExpectedLabel, target.ID)
	}
}

func (f fixture) recordIDs(t *testing.T, playerID string) []string {
	t.Helper()
	records, err := f.progress.Records(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.LevelID
	}
	return ids
}

func TestNewEngine_RequiresCatalog(t *testing.T) {
	if _, err := game.NewEngine(game.EngineConfig{}); err == nil {
		t.Fatal("NewEngine() without catalog should error")
	}
}

func TestEngine_PlayerRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.SelectTopic(ctx, "", "digestive"); !errors.Is(err, progression.ErrPlayerRequired) {
		t.Errorf("SelectTopic() error = %v, want ErrPlayerRequired", err)
	}
	if _, err := f.engine.Drop(ctx, "", "Mouth", "point-0"); !errors.Is(err, progression.ErrPlayerRequired) {
		t.Errorf("Drop() error = %v, want ErrPlayerRequired", err)
	}
}

func TestEngine_SelectTopicStartsLevelOne(t *testing.T) {
	f := newFixture(t)

	snap, err := f.engine.SelectTopic(context.Background(), "p1", "digestive")
	if err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	if snap.Level == nil || snap.Level.ID != "digestive-1" {
		t.Fatalf("active level = %v, want digestive-1", snap.Level)
	}
	if !slices.Equal(snap.AvailableLabels, []string{"Mouth", "Stomach", "Intestine"}) {
		t.Errorf("AvailableLabels = %v", snap.AvailableLabels)
	}
	if len(snap.Targets) != 3 || snap.TopicTotal != 4 || snap.TopicCompleted != 0 {
		t.Errorf("targets = %d, topic progress = %d/%d", len(snap.Targets), snap.TopicCompleted, snap.TopicTotal)
	}
	if len(snap.Levels) != 4 || !snap.Levels[0].Active || !snap.Levels[0].Unlocked || snap.Levels[1].Unlocked {
		t.Errorf("Levels = %+v", snap.Levels)
	}
	if !slices.Equal(f.channel.Kinds(), []notify.Kind{notify.KindLevelStarted}) {
		t.Errorf("notifications = %v", f.channel.Kinds())
	}
}

func TestEngine_SelectTopic_Unknown(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SelectTopic(context.Background(), "p1", "astronomy"); !errors.Is(err, catalog.ErrTopicNotFound) {
		t.Errorf("SelectTopic() error = %v, want ErrTopicNotFound", err)
	}
}

func TestEngine_DigestiveScenario(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SelectTopic(context.Background(), "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}

	steps := []struct {
		label, target string
		wantReason    placement.Reason
		wantAttempts  int
	}{
		{"Stomach", "point-1", "", 1},
		{"Mouth", "point-1", placement.ReasonAlreadyFilled, 1},
		{"Intestine", "point-0", placement.ReasonWrongLabel, 2},
		{"Mouth", "point-0", "", 3},
		{"Intestine", "point-2", "", 4},
	}
	for i, step := range steps {
		res := f.drop(t, "p1", step.label, step.target)
		if res.Outcome.Reason != step.wantReason {
			t.Errorf("step %d: reason = %q, want %q", i, res.Outcome.Reason, step.wantReason)
		}
		if res.Snapshot.Attempts != step.wantAttempts {
			t.Errorf("step %d: attempts = %d, want %d", i, res.Snapshot.Attempts, step.wantAttempts)
		}
	}

	snap := f.snapshot(t, "p1")
	if !snap.Complete || snap.Score != 87 || snap.Recorded {
		t.Fatalf("after last drop: complete=%v score=%d recorded=%v, want true 87 false", snap.Complete, snap.Score, snap.Recorded)
	}
	if snap.Accuracy != 75 {
		t.Errorf("Accuracy = %d, want 75", snap.Accuracy)
	}

	f.sched.Advance(1499 * time.Millisecond)
	if ids := f.recordIDs(t, "p1"); len(ids) != 0 {
		t.Fatalf("completion recorded before the grace period: %v", ids)
	}

	f.sched.Advance(time.Millisecond)
	if ids := f.recordIDs(t, "p1"); !slices.Equal(ids, []string{"digestive-1"}) {
		t.Fatalf("records = %v, want [digestive-1]", ids)
	}
	snap = f.snapshot(t, "p1")
	if snap.Level.ID != "digestive-1" || !snap.Recorded || !snap.HasNextLevel {
		t.Errorf("during celebration: level=%s recorded=%v next=%v", snap.Level.ID, snap.Recorded, snap.HasNextLevel)
	}
	if !snap.Levels[1].Unlocked {
		t.Error("digestive-2 should be unlocked once digestive-1 is recorded")
	}
	played := snap.PlayID

	f.sched.Advance(2 * time.Second)
	snap = f.snapshot(t, "p1")
	if snap.Level.ID != "digestive-2" {
		t.Fatalf("after advance: level = %s, want digestive-2", snap.Level.ID)
	}
	if snap.PlayID == played || snap.Attempts != 0 || len(snap.AvailableLabels) != 5 {
		t.Errorf("digestive-2 should start fresh: %+v", snap)
	}

	records, _ := f.progress.Records(context.Background(), "p1")
	if records[0].BestScore != 87 || records[0].Attempts != 4 {
		t.Errorf("record = %+v, want score 87 with 4 attempts", records[0])
	}

	kinds := f.channel.Kinds()
	if !slices.Contains(kinds, notify.KindLevelCompleted) || kinds[len(kinds)-1] != notify.KindLevelStarted {
		t.Errorf("notifications = %v", kinds)
	}
}

func TestEngine_SelectLockedLevelIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.engine.SelectTopic(ctx, "p1", "flower")
	if err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.drop(t, "p1", "Petal", "point-0")

	_, err = f.engine.SelectLevel(ctx, "p1", "", 2)
	if !errors.Is(err, game.ErrLevelLocked) {
		t.Fatalf("SelectLevel(2) error = %v, want ErrLevelLocked", err)
	}

	after := f.snapshot(t, "p1")
	if after.PlayID != before.PlayID || after.Level.ID != "flower-1" || after.Attempts != 1 {
		t.Errorf("refused selection changed the play: %+v", after)
	}
}

func TestEngine_SelectLevel_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.SelectLevel(ctx, "p1", "", 1); !errors.Is(err, game.ErrNoActiveTopic) {
		t.Errorf("SelectLevel() without topic error = %v, want ErrNoActiveTopic", err)
	}
	if _, err := f.engine.SelectLevel(ctx, "p1", "flower", 9); !errors.Is(err, catalog.ErrLevelNotFound) {
		t.Errorf("SelectLevel(9) error = %v, want ErrLevelNotFound", err)
	}
	if _, err := f.engine.SelectLevel(ctx, "p1", "flower", 1); err != nil {
		t.Errorf("SelectLevel(flower, 1) error = %v", err)
	}
}

func TestEngine_ResetCancelsPendingCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.SelectTopic(ctx, "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.solve(t, "p1")

	f.sched.Advance(time.Second)
	snap, err := f.engine.Reset(ctx, "p1")
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if snap.Attempts != 0 || snap.Complete || snap.Feedback != nil || len(snap.AvailableLabels) != 3 {
		t.Errorf("after reset: %+v", snap)
	}

	f.sched.Advance(10 * time.Second)
	if ids := f.recordIDs(t, "p1"); len(ids) != 0 {
		t.Errorf("reset level was recorded: %v", ids)
	}
	if got := f.snapshot(t, "p1"); got.Level.ID != "digestive-1" {
		t.Errorf("level = %s, want digestive-1", got.Level.ID)
	}
	if pending := f.sched.Pending(); len(pending) != 0 {
		t.Errorf("pending tasks after reset = %v", pending)
	}
}

func TestEngine_BackCancelsAutoAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.SelectTopic(ctx, "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.solve(t, "p1")
	f.sched.Advance(1500 * time.Millisecond)

	snap, err := f.engine.Back(ctx, "p1")
	if err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	if snap.Topic != nil || snap.Level != nil {
		t.Fatalf("Back() should clear topic and level: %+v", snap)
	}

	f.sched.Advance(10 * time.Second)
	if got := f.snapshot(t, "p1"); got.Level != nil {
		t.Errorf("advance fired after navigating away: level %s", got.Level.ID)
	}
	if ids := f.recordIDs(t, "p1"); !slices.Equal(ids, []string{"digestive-1"}) {
		t.Errorf("records = %v, want [digestive-1]", ids)
	}
}

func TestEngine_SelectingAnotherTopicCancelsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.SelectTopic(ctx, "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.solve(t, "p1")

	if _, err := f.engine.SelectTopic(ctx, "p1", "foodWeb"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.sched.Advance(10 * time.Second)

	if got := f.snapshot(t, "p1"); got.Level.ID != "foodWeb-1" {
		t.Errorf("level = %s, want foodWeb-1", got.Level.ID)
	}
	if ids := f.recordIDs(t, "p1"); len(ids) != 0 {
		t.Errorf("records = %v, want none", ids)
	}
}

func TestEngine_NextLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.SelectTopic(ctx, "p1", "plantCell"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}

	if _, err := f.engine.Next(ctx, "p1"); !errors.Is(err, game.ErrLevelIncomplete) {
		t.Fatalf("Next() on unfinished level error = %v, want ErrLevelIncomplete", err)
	}

	f.solve(t, "p1")
	snap, err := f.engine.Next(ctx, "p1")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if snap.Level.ID != "plantCell-2" {
		t.Fatalf("level = %s, want plantCell-2", snap.Level.ID)
	}
	if ids := f.recordIDs(t, "p1"); !slices.Equal(ids, []string{"plantCell-1"}) {
		t.Errorf("records = %v, want [plantCell-1]", ids)
	}

	f.sched.Advance(10 * time.Second)
	if got := f.snapshot(t, "p1"); got.Level.ID != "plantCell-2" || got.PlayID != snap.PlayID {
		t.Errorf("pending auto-advance fired after manual next: %s", got.Level.ID)
	}

	completions := 0
	for _, typ := range f.events.Types() {
		if typ == game.EventLevelCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Errorf("level_completed events = %d, want 1", completions)
	}
}

func TestEngine_NoAdvancePastLastLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"photosynthesis-1", "photosynthesis-2", "photosynthesis-3"} {
		if err := f.progress.Complete(ctx, "p1", progression.Record{LevelID: id, BestScore: 100}); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}

	snap, err := f.engine.SelectLevel(ctx, "p1", "photosynthesis", 4)
	if err != nil {
		t.Fatalf("SelectLevel(4) error = %v", err)
	}
	if snap.HasNextLevel {
		t.Error("last level should have no next level")
	}

	f.solve(t, "p1")
	f.sched.Advance(10 * time.Second)

	got := f.snapshot(t, "p1")
	if got.Level.ID != "photosynthesis-4" || !got.Recorded {
		t.Errorf("level = %s recorded = %v, want photosynthesis-4 recorded", got.Level.ID, got.Recorded)
	}
	if got.TopicCompleted != 4 {
		t.Errorf("TopicCompleted = %d, want 4", got.TopicCompleted)
	}
	if _, err := f.engine.Next(ctx, "p1"); !errors.Is(err, game.ErrNoNextLevel) {
		t.Errorf("Next() error = %v, want ErrNoNextLevel", err)
	}
}

func TestEngine_DropErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Drop(ctx, "p1", "Mouth", "point-0"); !errors.Is(err, game.ErrNoActiveLevel) {
		t.Errorf("Drop() without level error = %v, want ErrNoActiveLevel", err)
	}
	if _, err := f.engine.SelectTopic(ctx, "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	if _, err := f.engine.Drop(ctx, "p1", "Mouth", "point-9"); !errors.Is(err, game.ErrUnknownTarget) {
		t.Errorf("Drop() on unknown target error = %v, want ErrUnknownTarget", err)
	}

	res := f.drop(t, "p1", "", "point-0")
	if res.Outcome.Reason != placement.ReasonEmptyLabel || res.Snapshot.Attempts != 0 {
		t.Errorf("empty label: %+v", res)
	}
	if res.Snapshot.Feedback != nil {
		t.Error("empty label should not produce feedback")
	}
	if slices.Contains(f.channel.Kinds(), notify.KindDropRejected) {
		t.Error("empty label should not notify")
	}
}

func TestEngine_FeedbackClearsAfterDelay(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SelectTopic(context.Background(), "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}

	res := f.drop(t, "p1", "Stomach", "point-0")
	want := "Incorrect. Stomach doesn't belong here."
	if res.Snapshot.Feedback == nil || res.Snapshot.Feedback.Message != want || res.Snapshot.Feedback.Success {
		t.Fatalf("Feedback = %+v, want %q", res.Snapshot.Feedback, want)
	}

	f.sched.Advance(time.Second)
	res = f.drop(t, "p1", "Mouth", "point-0")
	if res.Snapshot.Feedback.Message != "Correct! Mouth is in the right place." {
		t.Fatalf("Feedback = %q", res.Snapshot.Feedback.Message)
	}

	f.sched.Advance(time.Second)
	if f.snapshot(t, "p1").Feedback == nil {
		t.Fatal("newer feedback was cleared by the older drop's timer")
	}

	f.sched.Advance(time.Second)
	if fb := f.snapshot(t, "p1").Feedback; fb != nil {
		t.Errorf("Feedback = %+v, want cleared", fb)
	}
	if !slices.Contains(f.channel.Kinds(), notify.KindFeedbackCleared) {
		t.Error("feedback_cleared notification missing")
	}
}

func TestEngine_ResetAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.SelectTopic(ctx, "p1", "digestive"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.solve(t, "p1")
	f.sched.Advance(10 * time.Second)

	if ids := f.recordIDs(t, "p1"); len(ids) != 1 {
		t.Fatalf("records = %v, want one", ids)
	}

	snap, err := f.engine.ResetAll(ctx, "p1")
	if err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	if snap.Topic != nil {
		t.Error("ResetAll() should return to topic selection")
	}
	if ids := f.recordIDs(t, "p1"); len(ids) != 0 {
		t.Errorf("records after reset = %v", ids)
	}

	levels, err := f.engine.Levels(ctx, "p1", "digestive")
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	for _, l := range levels[1:] {
		if l.Unlocked {
			t.Errorf("%s should be locked again", l.Level.ID)
		}
	}
	if !slices.Contains(f.channel.Kinds(), notify.KindProgressReset) {
		t.Error("progress_reset notification missing")
	}
}

func TestEngine_TopicsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.progress.Complete(ctx, "p1", progression.Record{LevelID: "flower-1", BestScore: 90, Attempts: 4})
	_ = f.progress.Complete(ctx, "p1", progression.Record{LevelID: "flower-2", BestScore: 80, Attempts: 5})

	topics, err := f.engine.Topics(ctx, "p1")
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	if len(topics) != 5 {
		t.Fatalf("Topics() = %d, want 5", len(topics))
	}
	for _, tv := range topics {
		want := 0
		if tv.ID == "flower" {
			want = 2
		}
		if tv.Completed != want || tv.Total != 4 {
			t.Errorf("%s progress = %d/%d, want %d/4", tv.ID, tv.Completed, tv.Total, want)
		}
	}

	anonymous, err := f.engine.Topics(ctx, "")
	if err != nil || len(anonymous) != 5 || anonymous[1].Completed != 0 {
		t.Errorf("Topics(\"\") = %v, %v", anonymous, err)
	}

	if _, err := f.engine.SelectTopic(ctx, "p1", "flower"); err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	f.drop(t, "p1", "Stem", "point-0")

	st, err := f.engine.Stats(ctx, "p1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalLevels != 20 || st.TotalCompleted != 2 || st.Percent != 10 {
		t.Errorf("Stats() overall = %+v", st.Overall)
	}
	if st.Accuracy != 0 || len(st.Records) != 2 {
		t.Errorf("Stats() accuracy = %d records = %d", st.Accuracy, len(st.Records))
	}

	levels, err := f.engine.Levels(ctx, "p1", "flower")
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	if !levels[0].Active || levels[0].BestScore != 90 || !levels[2].Unlocked || levels[3].Unlocked {
		t.Errorf("Levels() = %+v", levels)
	}
	if _, err := f.engine.Levels(ctx, "p1", "astronomy"); !errors.Is(err, catalog.ErrTopicNotFound) {
		t.Errorf("Levels(unknown) error = %v, want ErrTopicNotFound", err)
	}
}

func TestEngine_PlayersAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const players = 8
	var wg sync.WaitGroup
	errs := make(chan error, players)
	for i := range players {
		wg.Add(1)
		go func(playerID string, wrong int) {
			defer wg.Done()
			if _, err := f.engine.SelectTopic(ctx, playerID, "digestive"); err != nil {
				errs <- err
				return
			}
			for range wrong {
				if _, err := f.engine.Drop(ctx, playerID, "Intestine", "point-0"); err != nil {
					errs <- err
					return
				}
			}
		}(fmt.Sprintf("p%d", i), i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent play error = %v", err)
	}

	for i := range players {
		snap := f.snapshot(t, fmt.Sprintf("p%d", i))
		if snap.Attempts != i {
			t.Errorf("p%d attempts = %d, want %d", i, snap.Attempts, i)
		}
	}
}

func TestEngine_WithTimerScheduler(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	progress := progression.NewMemoryStore()
	eng, err := game.NewEngine(game.EngineConfig{
		Catalog:         cat,
		Progress:        progress,
		CompletionDelay: 10 * time.Millisecond,
		AdvanceDelay:    10 * time.Millisecond,
		FeedbackDelay:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx := context.Background()
	snap, err := eng.SelectTopic(ctx, "p1", "foodWeb")
	if err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	for _, target := range snap.Targets {
		if _, err := eng.Drop(ctx, "p1", target.ExpectedLabel, target.ID); err != nil {
			t.Fatalf("Drop() error = %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := eng.Snapshot(ctx, "p1")
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if got.Level != nil && got.Level.Ordinal == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timer-driven transition never advanced to level 2")
}

func TestEngine_BackAndResetAllDropStoredPlay(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	sessions := game.NewMemorySessionStore()
	engine, err := game.NewEngine(game.EngineConfig{
		Catalog:   cat,
		Sessions:  sessions,
		Scheduler: progression.NewManualScheduler(),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name  string
		leave func(playerID string) (game.Snapshot, error)
	}{
		{"back", func(id string) (game.Snapshot, error) { return engine.Back(ctx, id) }},
		{"reset all", func(id string) (game.Snapshot, error) { return engine.ResetAll(ctx, id) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.SelectTopic(ctx, "p1", "flower"); err != nil {
				t.Fatalf("SelectTopic() error = %v", err)
			}
			if _, ok, _ := sessions.Load(ctx, "p1"); !ok {
				t.Fatal("play not stored after SelectTopic")
			}

			snap, err := tt.leave("p1")
			if err != nil {
				t.Fatalf("leave error = %v", err)
			}
			if snap.Topic != nil || snap.Level != nil {
				t.Errorf("snapshot still has a topic: %+v", snap)
			}
			if _, ok, _ := sessions.Load(ctx, "p1"); ok {
				t.Error("stored play should be deleted")
			}
			if got, err := engine.Snapshot(ctx, "p1"); err != nil || got.Topic != nil {
				t.Errorf("Snapshot() = %+v, %v; want topic selection", got, err)
			}
		})
	}
}

func TestEngine_SlowTelegramDoesNotStallPlayer(t *testing.T) {
	release := make(chan struct{})
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer api.Close()
	defer close(release)

	tg, err := notify.NewTelegramChannel("token", "-100", notify.WithTelegramBaseURL(api.URL))
	if err != nil {
		t.Fatalf("NewTelegramChannel() error = %v", err)
	}
	tg.Start()
	defer tg.Stop()

	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	gw := notify.NewGateway()
	gw.Register("telegram", tg)
	sched := progression.NewManualScheduler()
	engine, err := game.NewEngine(game.EngineConfig{Catalog: cat, Notifier: gw, Scheduler: sched})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx := context.Background()
	snap, err := engine.SelectTopic(ctx, "p1", "digestive")
	if err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	for _, target := range snap.Targets {
		if _, err := engine.Drop(ctx, "p1", target.ExpectedLabel, target.ID); err != nil {
			t.Fatalf("Drop() error = %v", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		sched.Advance(1500 * time.Millisecond)
		_, err := engine.Snapshot(ctx, "p1")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("completing a level waited on the Telegram API")
	}

	st, err := engine.Stats(ctx, "p1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalCompleted != 1 {
		t.Errorf("TotalCompleted = %d, want 1", st.TotalCompleted)
	}
}
