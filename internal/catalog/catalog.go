// Package catalog holds the read-only content of the game: topics, their
// ordered levels and the target layout of every level.
package catalog

import (
	"errors"
	"math"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	// ErrTopicNotFound is returned when a topic id is not in the catalog.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrLevelNotFound is returned when a topic has no level with the given ordinal.
	ErrLevelNotFound = errors.New("level not found")
)

// Catalog is an immutable, keyed view over loaded content.
type Catalog struct {
	topics  map[string]Topic
	levels  map[string][]Level
	layouts map[string]layout // keyed by level id

	collator *collate.Collator
	mu       sync.Mutex // collate.Collator is not safe for concurrent use
}

func newCatalog() *Catalog {
	return &Catalog{
		topics:   make(map[string]Topic),
		levels:   make(map[string][]Level),
		layouts:  make(map[string]layout),
		collator: collate.New(language.English, collate.IgnoreCase),
	}
}

// Topic returns a topic by id.
func (c *Catalog) Topic(id string) (Topic, bool) {
	t, ok := c.topics[id]
	return t, ok
}

// Topics returns all topics ordered by position, then by title.
func (c *Catalog) Topics() []Topic {
	topics := make([]Topic, 0, len(c.topics))
	for _, t := range c.topics {
		topics = append(topics, t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Position != topics[j].Position {
			return topics[i].Position < topics[j].Position
		}
		if cmp := c.collator.CompareString(topics[i].Title, topics[j].Title); cmp != 0 {
			return cmp < 0
		}
		return topics[i].ID < topics[j].ID
	})
	return topics
}

// Levels returns the levels of a topic ordered by ordinal.
// The returned slice is a copy.
func (c *Catalog) Levels(topicID string) []Level {
	levels := c.levels[topicID]
	return append([]Level(nil), levels...)
}

// Level returns the level with the given 1-based ordinal within a topic.
func (c *Catalog) Level(topicID string, ordinal int) (Level, error) {
	if _, ok := c.topics[topicID]; !ok {
		return Level{}, ErrTopicNotFound
	}
	levels := c.levels[topicID]
	if ordinal < 1 || ordinal > len(levels) {
		return Level{}, ErrLevelNotFound
	}
	return levels[ordinal-1], nil
}

// TotalLevels is the number of levels across all topics.
func (c *Catalog) TotalLevels() int {
	total := 0
	for _, levels := range c.levels {
		total += len(levels)
	}
	return total
}

// Targets returns the placement targets of a level. Target i always expects
// Labels[i]. Levels without a coordinate layout that are not numbered get
// positional targets spread on an ellipse around the diagram centre.
func (c *Catalog) Targets(topicID string, ordinal int) ([]Target, error) {
	level, err := c.Level(topicID, ordinal)
	if err != nil {
		return nil, err
	}
	return c.targetsFor(level), nil
}

func (c *Catalog) targetsFor(level Level) []Target {
	lay := c.layouts[level.ID]
	targets := make([]Target, len(level.Labels))

	if lay.kind == TargetNumbered {
		for i, label := range level.Labels {
			targets[i] = Target{
				ID:            NumberedTargetID(i + 1),
				Kind:          TargetNumbered,
				ExpectedLabel: label,
				Number:        i + 1,
			}
		}
		return targets
	}

	points := lay.points
	if len(points) != len(level.Labels) {
		points = fallbackPoints(len(level.Labels))
	}
	for i, label := range level.Labels {
		targets[i] = Target{
			ID:            PositionalTargetID(i),
			Kind:          TargetPositional,
			ExpectedLabel: label,
			Point:         points[i],
		}
	}
	return targets
}

const (
	fallbackRadiusX = 30.0
	fallbackRadiusY = 25.0
	fallbackCenter  = 50.0
	fallbackMin     = 15.0
	fallbackMax     = 85.0
)

// fallbackPoints distributes n points on an ellipse, clamped inside the diagram.
func fallbackPoints(n int) []Point {
	points := make([]Point, n)
	for i := range points {
		angle := float64(i) / float64(n) * 2 * math.Pi
		points[i] = Point{
			X: clamp(fallbackCenter+fallbackRadiusX*math.Cos(angle), fallbackMin, fallbackMax),
			Y: clamp(fallbackCenter+fallbackRadiusY*math.Sin(angle), fallbackMin, fallbackMax),
		}
	}
	return points
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
