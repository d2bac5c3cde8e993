// Package progression decides which levels a player may enter and keeps the
// record of completed levels.
package progression

import "github.com/p-n-ai/labelquest/internal/catalog"

// Completed is the set of completed level ids.
type Completed map[string]bool

// Has reports whether levelID is in the set.
func (c Completed) Has(levelID string) bool {
	return c[levelID]
}

// Clone returns an independent copy of the set.
func (c Completed) Clone() Completed {
	out := make(Completed, len(c))
	for id := range c {
		out[id] = true
	}
	return out
}

// IsUnlocked reports whether the level with the given 1-based ordinal can be
// entered. Level 1 is always unlocked; level n needs level n-1 completed.
func IsUnlocked(topicLevels []catalog.Level, ordinal int, completed Completed) bool {
	if ordinal == 1 {
		return true
	}
	if ordinal < 1 || ordinal > len(topicLevels) {
		return false
	}
	return completed.Has(topicLevels[ordinal-2].ID)
}

// OnLevelCompleted returns completed with levelID added. The input is not
// modified and adding an id twice is a no-op.
func OnLevelCompleted(levelID string, completed Completed) Completed {
	out := completed.Clone()
	out[levelID] = true
	return out
}

// NextLevel returns the level after currentOrdinal, if any.
func NextLevel(topicLevels []catalog.Level, currentOrdinal int) (catalog.Level, bool) {
	if currentOrdinal < 1 || currentOrdinal >= len(topicLevels) {
		return catalog.Level{}, false
	}
	return topicLevels[currentOrdinal], true
}

// LevelState is the lock/completion view of one level for a player.
type LevelState struct {
	Level     catalog.Level `json:"level"`
	Unlocked  bool          `json:"unlocked"`
	Completed bool          `json:"completed"`
	BestScore int           `json:"best_score,omitempty"`
}

// LevelStates derives the state of every level in a topic.
func LevelStates(topicLevels []catalog.Level, records []Record) []LevelState {
	completed := CompletedSet(records)
	best := make(map[string]int, len(records))
	for _, r := range records {
		best[r.LevelID] = r.BestScore
	}

	states := make([]LevelState, len(topicLevels))
	for i, lvl := range topicLevels {
		states[i] = LevelState{
			Level:     lvl,
			Unlocked:  IsUnlocked(topicLevels, i+1, completed),
			Completed: completed.Has(lvl.ID),
			BestScore: best[lvl.ID],
		}
	}
	return states
}
