// Package stats derives the progress figures shown to a player.
package stats

import (
	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/placement"
	"github.com/p-n-ai/labelquest/internal/progression"
)

// Overall summarizes completion across the whole catalog.
type Overall struct {
	TotalLevels    int `json:"total_levels"`
	TotalCompleted int `json:"total_completed"`
	Percent        int `json:"percent"`
}

// TopicProgress counts the completed levels of one topic.
func TopicProgress(topicLevels []catalog.Level, completed progression.Completed) int {
	n := 0
	for _, l := range topicLevels {
		if completed.Has(l.ID) {
			n++
		}
	}
	return n
}

// OverallStats totals completion over every topic's levels.
func OverallStats(levelsByTopic map[string][]catalog.Level, completed progression.Completed) Overall {
	var o Overall
	for _, levels := range levelsByTopic {
		o.TotalLevels += len(levels)
		o.TotalCompleted += TopicProgress(levels, completed)
	}
	o.Percent = percent(o.TotalCompleted, o.TotalLevels)
	return o
}

// ForCatalog is OverallStats over every topic in cat.
func ForCatalog(cat *catalog.Catalog, completed progression.Completed) Overall {
	byTopic := make(map[string][]catalog.Level)
	for _, t := range cat.Topics() {
		byTopic[t.ID] = cat.Levels(t.ID)
	}
	return OverallStats(byTopic, completed)
}

// Accuracy is the share of counted attempts that placed a label, as a
// rounded percentage. No attempts yields 0.
func Accuracy(s *placement.Session) int {
	if s == nil {
		return 0
	}
	return percent(len(s.Placed), s.Attempts)
}

// percent rounds 100*part/whole half up using integers.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (200*part + whole) / (2 * whole)
}
