// Package placement validates label drops against the targets of a level,
// counts attempts and scores a finished level.
package placement

import (
	"fmt"
	"sort"

	"github.com/p-n-ai/labelquest/internal/catalog"
)

// OutcomeKind distinguishes accepted from rejected drops.
type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeRejected OutcomeKind = "rejected"
)

// Reason explains why a drop was rejected.
type Reason string

const (
	ReasonEmptyLabel    Reason = "empty_label"
	ReasonAlreadyFilled Reason = "already_filled"
	ReasonWrongLabel    Reason = "wrong_label"
)

// Outcome is the result of one proposed drop.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Label    string      `json:"label"`
	TargetID string      `json:"target_id"`
	Reason   Reason      `json:"reason,omitempty"`
}

// Success reports whether the drop placed the label.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

// Counted reports whether the drop was evaluated and therefore cost an attempt.
func (o Outcome) Counted() bool {
	return o.Kind == OutcomeSuccess || o.Reason == ReasonWrongLabel
}

// Session is the mutable state of one active level instance.
type Session struct {
	LevelID     string `json:"level_id"`
	TotalLabels int    `json:"total_labels"`
	Attempts    int    `json:"attempts"`
	// Placed maps a completed target id to the label placed on it.
	Placed      map[string]string `json:"placed"`
	LastOutcome *Outcome          `json:"last_outcome,omitempty"`
}

// BeginSession starts a fresh session for level.
func BeginSession(level catalog.Level) *Session {
	return &Session{
		LevelID:     level.ID,
		TotalLabels: level.TotalLabels,
		Placed:      make(map[string]string, level.TotalLabels),
	}
}

// Reset discards all progress on the session's level instance.
func Reset(s *Session) *Session {
	return &Session{
		LevelID:     s.LevelID,
		TotalLabels: s.TotalLabels,
		Placed:      make(map[string]string, s.TotalLabels),
	}
}

// ProposeDrop evaluates label dropped on target. Empty labels and drops on a
// completed target are no-ops that cost no attempt. Every other drop costs
// exactly one attempt; it succeeds iff label equals the expected label byte
// for byte. target must belong to the session's level.
func ProposeDrop(s *Session, label string, target catalog.Target) Outcome {
	if label == "" {
		return Outcome{Kind: OutcomeRejected, TargetID: target.ID, Reason: ReasonEmptyLabel}
	}
	if s.Placed == nil {
		s.Placed = make(map[string]string, s.TotalLabels)
	}
	if _, filled := s.Placed[target.ID]; filled {
		out := Outcome{Kind: OutcomeRejected, Label: label, TargetID: target.ID, Reason: ReasonAlreadyFilled}
		s.LastOutcome = &out
		return out
	}

	s.Attempts++

	if label != target.ExpectedLabel {
		out := Outcome{Kind: OutcomeRejected, Label: label, TargetID: target.ID, Reason: ReasonWrongLabel}
		s.LastOutcome = &out
		return out
	}

	s.Placed[target.ID] = label
	out := Outcome{Kind: OutcomeSuccess, Label: label, TargetID: target.ID}
	s.LastOutcome = &out
	return out
}

// IsLevelComplete reports whether every target has been filled.
func IsLevelComplete(s *Session) bool {
	return len(s.Placed) == s.TotalLabels
}

// CompletedTargetIDs returns the filled target ids in sorted order.
func CompletedTargetIDs(s *Session) []string {
	ids := make([]string, 0, len(s.Placed))
	for id := range s.Placed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ComputeScore scores the session from its current attempt count.
func ComputeScore(s *Session, totalLabels int) int {
	return Score(s.Attempts, totalLabels)
}

// Score is max(0, 100 - floor(attempts/totalLabels*10)).
func Score(attempts, totalLabels int) int {
	if totalLabels <= 0 {
		return 0
	}
	if attempts < 0 {
		attempts = 0
	}
	return max(0, 100-attempts*10/totalLabels)
}

// AvailableLabels returns the level's labels that are not placed yet, in
// level order.
func AvailableLabels(level catalog.Level, s *Session) []string {
	placed := make(map[string]bool, len(s.Placed))
	for _, label := range s.Placed {
		placed[label] = true
	}
	available := make([]string, 0, len(level.Labels))
	for _, label := range level.Labels {
		if !placed[label] {
			available = append(available, label)
		}
	}
	return available
}

// Feedback is the transient message shown for an outcome. Rejections that
// cost no attempt produce no message.
func Feedback(o Outcome) string {
	switch {
	case o.Success():
		return fmt.Sprintf("Correct! %s is in the right place.", o.Label)
	case o.Reason == ReasonWrongLabel:
		return fmt.Sprintf("Incorrect. %s doesn't belong here.", o.Label)
	default:
		return ""
	}
}
