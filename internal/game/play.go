package game

import (
	"time"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/placement"
	"github.com/p-n-ai/labelquest/internal/progression"
)

// Feedback is the transient message shown after an evaluated drop.
type Feedback struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// Play is everything the engine knows about what one player is doing right
// now. ID changes whenever a level instance starts or ends, so deferred work
// armed for an older instance can tell it is stale.
type Play struct {
	ID       string             `json:"id"`
	PlayerID string             `json:"player_id"`
	TopicID  string             `json:"topic_id,omitempty"`
	Ordinal  int                `json:"ordinal,omitempty"`
	Session  *placement.Session `json:"session,omitempty"`
	// Recorded is set once the finished level has been written to the
	// progress store.
	Recorded    bool      `json:"recorded"`
	Score       int       `json:"score"`
	Feedback    *Feedback `json:"feedback,omitempty"`
	FeedbackSeq int       `json:"feedback_seq"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Active reports whether a level is being played.
func (p *Play) Active() bool {
	return p.TopicID != "" && p.Ordinal > 0 && p.Session != nil
}

func (p *Play) clone() *Play {
	c := *p
	if p.Session != nil {
		s := *p.Session
		s.Placed = make(map[string]string, len(p.Session.Placed))
		for k, v := range p.Session.Placed {
			s.Placed[k] = v
		}
		if p.Session.LastOutcome != nil {
			o := *p.Session.LastOutcome
			s.LastOutcome = &o
		}
		c.Session = &s
	}
	if p.Feedback != nil {
		f := *p.Feedback
		c.Feedback = &f
	}
	return &c
}

// LevelView is a level as listed to a player.
type LevelView struct {
	progression.LevelState
	Active bool `json:"active"`
}

// TopicView is a topic with the player's progress through it.
type TopicView struct {
	catalog.Topic
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Snapshot is the read model handed to clients after every action.
type Snapshot struct {
	PlayerID         string             `json:"player_id"`
	PlayID           string             `json:"play_id"`
	Topic            *catalog.Topic     `json:"topic,omitempty"`
	Level            *catalog.Level     `json:"level,omitempty"`
	Targets          []catalog.Target   `json:"targets,omitempty"`
	Attempts         int                `json:"attempts"`
	CompletedTargets []string           `json:"completed_targets"`
	LastOutcome      *placement.Outcome `json:"last_outcome,omitempty"`
	AvailableLabels  []string           `json:"available_labels"`
	Complete         bool               `json:"complete"`
	Recorded         bool               `json:"recorded"`
	Score            int                `json:"score"`
	Accuracy         int                `json:"accuracy"`
	Feedback         *Feedback          `json:"feedback,omitempty"`
	HasNextLevel     bool               `json:"has_next_level"`
	Levels           []LevelView        `json:"levels,omitempty"`
	TopicCompleted   int                `json:"topic_completed"`
	TopicTotal       int                `json:"topic_total"`
}
