// Package game runs label-placement play for many players at once. Each
// player has one Play, mutated only under that player's lock, and the
// delayed transitions after a finished level are scheduled against the
// play's identity so they never touch a level the player has left.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/notify"
	"github.com/p-n-ai/labelquest/internal/placement"
	"github.com/p-n-ai/labelquest/internal/progression"
	"github.com/p-n-ai/labelquest/internal/stats"
)

const (
	DefaultFeedbackDelay = 2 * time.Second
	callbackTimeout      = 10 * time.Second
)

var (
	ErrLevelLocked     = errors.New("level is locked")
	ErrNoActiveLevel   = errors.New("no active level")
	ErrNoActiveTopic   = errors.New("no active topic")
	ErrUnknownTarget   = errors.New("unknown target")
	ErrLevelIncomplete = errors.New("level is not complete")
	ErrNoNextLevel     = errors.New("no next level")
)

// Notifier receives the transient notifications produced by play.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Notification) error { return nil }

// EngineConfig holds dependencies for the game engine.
type EngineConfig struct {
	Catalog         *catalog.Catalog
	Progress        progression.Store
	Sessions        SessionStore
	Events          EventLogger
	Notifier        Notifier
	Scheduler       progression.Scheduler
	CompletionDelay time.Duration // default 1.5s
	AdvanceDelay    time.Duration // default 2s
	FeedbackDelay   time.Duration // default 2s
}

// Engine is the per-player game orchestrator.
type Engine struct {
	catalog       *catalog.Catalog
	progress      progression.Store
	sessions      SessionStore
	events        EventLogger
	notifier      Notifier
	sched         progression.Scheduler
	transitions   *progression.Transitions
	feedbackDelay time.Duration

	mu    sync.Mutex
	locks map[string]*playerLock
}

// NewEngine creates a new game engine. Only the catalog is required.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	progress := cfg.Progress
	if progress == nil {
		progress = progression.NewMemoryStore()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = progression.NewTimerScheduler()
	}
	feedbackDelay := cfg.FeedbackDelay
	if feedbackDelay == 0 {
		feedbackDelay = DefaultFeedbackDelay
	}
	return &Engine{
		catalog:       cfg.Catalog,
		progress:      progress,
		sessions:      sessions,
		events:        events,
		notifier:      notifier,
		sched:         sched,
		transitions:   progression.NewTransitions(sched, cfg.CompletionDelay, cfg.AdvanceDelay),
		feedbackDelay: feedbackDelay,
		locks:         make(map[string]*playerLock),
	}, nil
}

// Catalog returns the content the engine plays.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// SelectTopic starts level 1 of topicID.
func (e *Engine) SelectTopic(ctx context.Context, playerID, topicID string) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}
	level, err := e.catalog.Level(topicID, 1)
	if err != nil {
		return Snapshot{}, err
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	e.disarm(play)
	play = e.begin(playerID, level)
	if err := e.save(ctx, play); err != nil {
		return Snapshot{}, err
	}

	e.logEvent(ctx, play, EventTopicSelected, map[string]any{"topic_id": topicID})
	e.notifyLevelStarted(ctx, play, level)
	return e.snapshot(ctx, play)
}

// SelectLevel starts the level with ordinal in topicID, or in the current
// topic when topicID is empty. Locked levels are refused without touching
// the current play.
func (e *Engine) SelectLevel(ctx context.Context, playerID, topicID string, ordinal int) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	if topicID == "" {
		topicID = play.TopicID
	}
	if topicID == "" {
		return Snapshot{}, ErrNoActiveTopic
	}
	level, err := e.catalog.Level(topicID, ordinal)
	if err != nil {
		return Snapshot{}, err
	}

	completed, err := e.completed(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	if !progression.IsUnlocked(e.catalog.Levels(topicID), ordinal, completed) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrLevelLocked, level.ID)
	}

	e.disarm(play)
	play = e.begin(playerID, level)
	if err := e.save(ctx, play); err != nil {
		return Snapshot{}, err
	}

	e.logEvent(ctx, play, EventLevelStarted, map[string]any{"level_id": level.ID})
	e.notifyLevelStarted(ctx, play, level)
	return e.snapshot(ctx, play)
}

// DropResult is the outcome of a drop plus the state after it.
type DropResult struct {
	Outcome  placement.Outcome `json:"outcome"`
	Snapshot Snapshot          `json:"snapshot"`
}

// Drop proposes label for the target with targetID on the active level.
func (e *Engine) Drop(ctx context.Context, playerID, label, targetID string) (DropResult, error) {
	if playerID == "" {
		return DropResult{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return DropResult{}, err
	}
	if !play.Active() {
		return DropResult{}, ErrNoActiveLevel
	}
	target, err := e.target(play, targetID)
	if err != nil {
		return DropResult{}, err
	}

	out := placement.ProposeDrop(play.Session, label, target)
	if out.Counted() {
		play.FeedbackSeq++
		play.Feedback = &Feedback{Message: placement.Feedback(out), Success: out.Success()}
		e.scheduleFeedbackClear(playerID, play.ID, play.FeedbackSeq)
	}

	finished := out.Success() && placement.IsLevelComplete(play.Session)
	if finished {
		play.Score = placement.ComputeScore(play.Session, play.Session.TotalLabels)
		e.armTransitions(playerID, play.ID)
	}

	if err := e.save(ctx, play); err != nil {
		return DropResult{}, err
	}

	if out.Counted() {
		e.logEvent(ctx, play, EventLabelDropped, map[string]any{
			"label":     out.Label,
			"target_id": out.TargetID,
			"success":   out.Success(),
			"attempts":  play.Session.Attempts,
		})
		kind := notify.KindDropRejected
		if out.Success() {
			kind = notify.KindDropAccepted
		}
		e.notify(ctx, notify.Notification{
			Kind:     kind,
			PlayerID: playerID,
			TopicID:  play.TopicID,
			LevelID:  play.Session.LevelID,
			Ordinal:  play.Ordinal,
			Label:    out.Label,
			TargetID: out.TargetID,
			Message:  play.Feedback.Message,
			Attempts: play.Session.Attempts,
		})
	}

	snap, err := e.snapshot(ctx, play)
	if err != nil {
		return DropResult{}, err
	}
	return DropResult{Outcome: out, Snapshot: snap}, nil
}

// Reset restarts the active level instance. A completion already recorded
// stays recorded.
func (e *Engine) Reset(ctx context.Context, playerID string) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	if !play.Active() {
		return Snapshot{}, ErrNoActiveLevel
	}
	e.disarm(play)

	play.ID = uuid.NewString()
	play.Session = placement.Reset(play.Session)
	play.Recorded = false
	play.Score = 0
	play.Feedback = nil
	if err := e.save(ctx, play); err != nil {
		return Snapshot{}, err
	}

	e.logEvent(ctx, play, EventLevelReset, map[string]any{"level_id": play.Session.LevelID})
	return e.snapshot(ctx, play)
}

// Back leaves the active topic and level.
func (e *Engine) Back(ctx context.Context, playerID string) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	e.disarm(play)
	if err := e.discard(ctx, playerID); err != nil {
		return Snapshot{}, err
	}

	e.logEvent(ctx, play, EventNavigatedBack, map[string]any{"topic_id": play.TopicID})
	return e.snapshot(ctx, &Play{PlayerID: playerID})
}

// Next moves from a finished level to the following one straight away,
// recording the completion first if the delayed transition has not yet done
// so.
func (e *Engine) Next(ctx context.Context, playerID string) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	if !play.Active() {
		return Snapshot{}, ErrNoActiveLevel
	}
	if !placement.IsLevelComplete(play.Session) {
		return Snapshot{}, ErrLevelIncomplete
	}
	next, ok := progression.NextLevel(e.catalog.Levels(play.TopicID), play.Ordinal)
	if !ok {
		return Snapshot{}, ErrNoNextLevel
	}

	e.disarm(play)
	if !play.Recorded {
		if _, err := e.record(ctx, play); err != nil {
			return Snapshot{}, err
		}
	}

	play = e.begin(playerID, next)
	if err := e.save(ctx, play); err != nil {
		return Snapshot{}, err
	}

	e.logEvent(ctx, play, EventLevelStarted, map[string]any{"level_id": next.ID, "manual": true})
	e.notifyLevelStarted(ctx, play, next)
	return e.snapshot(ctx, play)
}

// ResetAll clears every completed level of the player and returns them to
// topic selection.
func (e *Engine) ResetAll(ctx context.Context, playerID string) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	e.disarm(play)

	if err := e.progress.Reset(ctx, playerID); err != nil {
		return Snapshot{}, fmt.Errorf("reset progress: %w", err)
	}
	if err := e.discard(ctx, playerID); err != nil {
		return Snapshot{}, err
	}

	e.logEvent(ctx, play, EventProgressReset, nil)
	e.notify(ctx, notify.Notification{Kind: notify.KindProgressReset, PlayerID: playerID})
	return e.snapshot(ctx, &Play{PlayerID: playerID})
}

// Snapshot returns the player's current state.
func (e *Engine) Snapshot(ctx context.Context, playerID string) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, progression.ErrPlayerRequired
	}

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(ctx, play)
}

// PlayerStats is the progress summary of a player.
type PlayerStats struct {
	stats.Overall
	Topics   []TopicView          `json:"topics"`
	Accuracy int                  `json:"accuracy"`
	Records  []progression.Record `json:"records"`
}

// Stats summarizes the player's progress over the whole catalog and the
// accuracy of the active level.
func (e *Engine) Stats(ctx context.Context, playerID string) (PlayerStats, error) {
	if playerID == "" {
		return PlayerStats{}, progression.ErrPlayerRequired
	}
	records, err := e.progress.Records(ctx, playerID)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("load progress: %w", err)
	}
	completed := progression.CompletedSet(records)

	out := PlayerStats{
		Overall: stats.ForCatalog(e.catalog, completed),
		Topics:  e.topicViews(completed),
		Records: records,
	}

	unlock := e.lock(playerID)
	play, err := e.load(ctx, playerID)
	unlock()
	if err != nil {
		return PlayerStats{}, err
	}
	if play.Active() {
		out.Accuracy = stats.Accuracy(play.Session)
	}
	return out, nil
}

// Topics lists every topic with the player's progress. An empty playerID
// lists them with no progress.
func (e *Engine) Topics(ctx context.Context, playerID string) ([]TopicView, error) {
	completed := progression.Completed{}
	if playerID != "" {
		var err error
		if completed, err = e.completed(ctx, playerID); err != nil {
			return nil, err
		}
	}
	return e.topicViews(completed), nil
}

// Levels lists the levels of topicID with the player's lock state.
func (e *Engine) Levels(ctx context.Context, playerID, topicID string) ([]LevelView, error) {
	if _, ok := e.catalog.Topic(topicID); !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrTopicNotFound, topicID)
	}
	var records []progression.Record
	active := ""
	if playerID != "" {
		var err error
		if records, err = e.progress.Records(ctx, playerID); err != nil {
			return nil, fmt.Errorf("load progress: %w", err)
		}
		unlock := e.lock(playerID)
		play, err := e.load(ctx, playerID)
		unlock()
		if err != nil {
			return nil, err
		}
		if play.Active() {
			active = play.Session.LevelID
		}
	}
	return levelViews(e.catalog.Levels(topicID), records, active), nil
}

func (e *Engine) topicViews(completed progression.Completed) []TopicView {
	topics := e.catalog.Topics()
	views := make([]TopicView, len(topics))
	for i, t := range topics {
		levels := e.catalog.Levels(t.ID)
		views[i] = TopicView{
			Topic:     t,
			Completed: stats.TopicProgress(levels, completed),
			Total:     len(levels),
		}
	}
	return views
}

func levelViews(levels []catalog.Level, records []progression.Record, activeLevelID string) []LevelView {
	states := progression.LevelStates(levels, records)
	views := make([]LevelView, len(states))
	for i, s := range states {
		views[i] = LevelView{LevelState: s, Active: s.Level.ID == activeLevelID}
	}
	return views
}

// completeLevel is the first stage of the delayed transition. It records the
// finished level and reports whether a next level should follow.
func (e *Engine) completeLevel(playerID, playID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		slog.Error("failed to load play for completion", "player_id", playerID, "error", err)
		return false
	}
	if play.ID != playID || !play.Active() || !placement.IsLevelComplete(play.Session) {
		slog.Debug("stale completion skipped", "player_id", playerID, "play_id", playID)
		return false
	}
	if play.Recorded {
		return false
	}

	hasNext, err := e.record(ctx, play)
	if err != nil {
		slog.Error("failed to record completion", "player_id", playerID, "error", err)
		return false
	}
	if err := e.save(ctx, play); err != nil {
		slog.Error("failed to save play", "player_id", playerID, "error", err)
		return false
	}
	return hasNext
}

// advanceLevel is the second stage of the delayed transition.
func (e *Engine) advanceLevel(playerID, playID string) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		slog.Error("failed to load play for advance", "player_id", playerID, "error", err)
		return
	}
	if play.ID != playID || !play.Active() {
		slog.Debug("stale advance skipped", "player_id", playerID, "play_id", playID)
		return
	}
	next, ok := progression.NextLevel(e.catalog.Levels(play.TopicID), play.Ordinal)
	if !ok {
		return
	}

	e.sched.Cancel(feedbackKey(play.ID))
	play = e.begin(playerID, next)
	if err := e.save(ctx, play); err != nil {
		slog.Error("failed to save play", "player_id", playerID, "error", err)
		return
	}

	slog.Info("level advanced", "player_id", playerID, "level_id", next.ID)
	e.logEvent(ctx, play, EventLevelStarted, map[string]any{"level_id": next.ID, "manual": false})
	e.notifyLevelStarted(ctx, play, next)
}

// clearFeedback hides the feedback of drop number seq unless a newer drop
// or a new level instance replaced it.
func (e *Engine) clearFeedback(playerID, playID string, seq int) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	unlock := e.lock(playerID)
	defer unlock()

	play, err := e.load(ctx, playerID)
	if err != nil {
		slog.Error("failed to load play for feedback", "player_id", playerID, "error", err)
		return
	}
	if play.ID != playID || play.FeedbackSeq != seq || play.Feedback == nil {
		return
	}
	play.Feedback = nil
	if err := e.save(ctx, play); err != nil {
		slog.Error("failed to save play", "player_id", playerID, "error", err)
		return
	}
	e.notify(ctx, notify.Notification{Kind: notify.KindFeedbackCleared, PlayerID: playerID, TopicID: play.TopicID})
}

// record writes the finished level of play to the progress store and marks
// play as recorded. The caller saves play.
func (e *Engine) record(ctx context.Context, play *Play) (bool, error) {
	level, err := e.catalog.Level(play.TopicID, play.Ordinal)
	if err != nil {
		return false, err
	}
	if err := e.progress.Complete(ctx, play.PlayerID, progression.Record{
		LevelID:   level.ID,
		BestScore: play.Score,
		Attempts:  play.Session.Attempts,
	}); err != nil {
		return false, fmt.Errorf("record completion: %w", err)
	}
	play.Recorded = true

	slog.Info("level completed",
		"player_id", play.PlayerID,
		"level_id", level.ID,
		"score", play.Score,
		"attempts", play.Session.Attempts,
	)
	e.logEvent(ctx, play, EventLevelCompleted, map[string]any{
		"level_id": level.ID,
		"score":    play.Score,
		"attempts": play.Session.Attempts,
	})
	e.notify(ctx, notify.Notification{
		Kind:     notify.KindLevelCompleted,
		PlayerID: play.PlayerID,
		TopicID:  play.TopicID,
		LevelID:  level.ID,
		Ordinal:  play.Ordinal,
		Score:    play.Score,
		Attempts: play.Session.Attempts,
	})

	_, hasNext := progression.NextLevel(e.catalog.Levels(play.TopicID), play.Ordinal)
	return hasNext, nil
}

func (e *Engine) begin(playerID string, level catalog.Level) *Play {
	return &Play{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		TopicID:  level.TopicID,
		Ordinal:  level.Ordinal,
		Session:  placement.BeginSession(level),
	}
}

func (e *Engine) target(play *Play, targetID string) (catalog.Target, error) {
	targets, err := e.catalog.Targets(play.TopicID, play.Ordinal)
	if err != nil {
		return catalog.Target{}, err
	}
	for _, t := range targets {
		if t.ID == targetID {
			return t, nil
		}
	}
	return catalog.Target{}, fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
}

func transitionKey(playID string) string { return "transition:" + playID }
func feedbackKey(playID string) string   { return "feedback:" + playID }

func (e *Engine) armTransitions(playerID, playID string) {
	e.transitions.Arm(transitionKey(playID),
		func() bool { return e.completeLevel(playerID, playID) },
		func() { e.advanceLevel(playerID, playID) },
	)
}

func (e *Engine) scheduleFeedbackClear(playerID, playID string, seq int) {
	e.sched.Schedule(feedbackKey(playID), e.feedbackDelay, func() {
		e.clearFeedback(playerID, playID, seq)
	})
}

// disarm cancels every deferred task armed for play.
func (e *Engine) disarm(play *Play) {
	if play.ID == "" {
		return
	}
	e.transitions.Disarm(transitionKey(play.ID))
	e.sched.Cancel(feedbackKey(play.ID))
}

// playerLock serializes one player's actions. refs counts holders and
// waiters so the entry can be dropped once the player is idle.
type playerLock struct {
	mu   sync.Mutex
	refs int
}

func (e *Engine) lock(playerID string) func() {
	e.mu.Lock()
	l, ok := e.locks[playerID]
	if !ok {
		l = &playerLock{}
		e.locks[playerID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, playerID)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) load(ctx context.Context, playerID string) (*Play, error) {
	play, ok, err := e.sessions.Load(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load play: %w", err)
	}
	if !ok {
		return &Play{PlayerID: playerID}, nil
	}
	return play, nil
}

func (e *Engine) save(ctx context.Context, play *Play) error {
	play.UpdatedAt = time.Now()
	if err := e.sessions.Save(ctx, play); err != nil {
		return fmt.Errorf("save play: %w", err)
	}
	return nil
}

// discard drops the stored play, returning the player to topic selection.
func (e *Engine) discard(ctx context.Context, playerID string) error {
	if err := e.sessions.Delete(ctx, playerID); err != nil {
		return fmt.Errorf("delete play: %w", err)
	}
	return nil
}

func (e *Engine) completed(ctx context.Context, playerID string) (progression.Completed, error) {
	records, err := e.progress.Records(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return progression.CompletedSet(records), nil
}

func (e *Engine) logEvent(ctx context.Context, play *Play, eventType string, data map[string]any) {
	if err := e.events.LogEvent(ctx, Event{
		PlayerID:  play.PlayerID,
		PlayID:    play.ID,
		EventType: eventType,
		Data:      data,
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "player_id", play.PlayerID, "error", err)
	}
}

func (e *Engine) notify(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		slog.Warn("failed to deliver notification", "kind", n.Kind, "player_id", n.PlayerID, "error", err)
	}
}

func (e *Engine) notifyLevelStarted(ctx context.Context, play *Play, level catalog.Level) {
	e.notify(ctx, notify.Notification{
		Kind:     notify.KindLevelStarted,
		PlayerID: play.PlayerID,
		TopicID:  level.TopicID,
		LevelID:  level.ID,
		Ordinal:  level.Ordinal,
	})
}

func (e *Engine) snapshot(ctx context.Context, play *Play) (Snapshot, error) {
	snap := Snapshot{
		PlayerID:         play.PlayerID,
		PlayID:           play.ID,
		CompletedTargets: []string{},
		AvailableLabels:  []string{},
	}
	if play.TopicID == "" {
		return snap, nil
	}

	topic, ok := e.catalog.Topic(play.TopicID)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", catalog.ErrTopicNotFound, play.TopicID)
	}
	snap.Topic = &topic

	records, err := e.progress.Records(ctx, play.PlayerID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load progress: %w", err)
	}
	levels := e.catalog.Levels(play.TopicID)
	completed := progression.CompletedSet(records)
	snap.TopicCompleted = stats.TopicProgress(levels, completed)
	snap.TopicTotal = len(levels)

	if !play.Active() {
		snap.Levels = levelViews(levels, records, "")
		return snap, nil
	}

	level, err := e.catalog.Level(play.TopicID, play.Ordinal)
	if err != nil {
		return Snapshot{}, err
	}
	targets, err := e.catalog.Targets(play.TopicID, play.Ordinal)
	if err != nil {
		return Snapshot{}, err
	}

	snap.Level = &level
	snap.Targets = targets
	snap.Levels = levelViews(levels, records, level.ID)
	snap.Attempts = play.Session.Attempts
	snap.CompletedTargets = placement.CompletedTargetIDs(play.Session)
	snap.LastOutcome = play.Session.LastOutcome
	snap.AvailableLabels = placement.AvailableLabels(level, play.Session)
	snap.Complete = placement.IsLevelComplete(play.Session)
	snap.Recorded = play.Recorded
	snap.Score = play.Score
	snap.Accuracy = stats.Accuracy(play.Session)
	snap.Feedback = play.Feedback
	_, snap.HasNextLevel = progression.NextLevel(levels, play.Ordinal)
	return snap, nil
}
