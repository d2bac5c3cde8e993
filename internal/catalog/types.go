package catalog

import "fmt"

// Category is the subject area a topic belongs to.
type Category string

const (
	CategoryAnatomy      Category = "anatomy"
	CategoryBotany       Category = "botany"
	CategoryCellular     Category = "cellular"
	CategoryEcology      Category = "ecology"
	CategoryBiochemistry Category = "biochemistry"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryAnatomy,
	CategoryBotany,
	CategoryCellular,
	CategoryEcology,
	CategoryBiochemistry,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Topic is a subject with its own diagram and label set.
type Topic struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon"`
	Category    Category `yaml:"category" json:"category"`
	Position    int      `yaml:"position" json:"position"`
}

// Level is one ordered difficulty tier within a topic.
type Level struct {
	ID          string   `json:"id"`
	TopicID     string   `json:"topic_id"`
	Ordinal     int      `json:"ordinal"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	TotalLabels int      `json:"total_labels"`
}

// Point is a diagram coordinate expressed as percentages of the diagram area.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// TargetKind tags which addressing scheme a target uses.
type TargetKind string

const (
	TargetPositional TargetKind = "positional"
	TargetNumbered   TargetKind = "numbered"
)

// Target is a placement slot expecting exactly one label.
// Point is set for positional targets, Number for numbered ones.
type Target struct {
	ID            string     `json:"id"`
	Kind          TargetKind `json:"kind"`
	ExpectedLabel string     `json:"expected_label"`
	Point         Point      `json:"point"`
	Number        int        `json:"number,omitempty"`
}

// PositionalTargetID returns the id of the i-th (0-based) positional target.
func PositionalTargetID(i int) string {
	return fmt.Sprintf("point-%d", i)
}

// NumberedTargetID returns the id of the numbered slot n (1-based).
func NumberedTargetID(n int) string {
	return fmt.Sprintf("slot-%d", n)
}

// LevelID builds the conventional level id for a topic and ordinal.
func LevelID(topicID string, ordinal int) string {
	return fmt.Sprintf("%s-%d", topicID, ordinal)
}

// document is the on-disk YAML shape of one topic file.
type document struct {
	Topic  `yaml:",inline"`
	Levels []levelDocument `yaml:"levels"`
}

type levelDocument struct {
	ID          string   `yaml:"id"`
	Ordinal     int      `yaml:"ordinal"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Labels      []string `yaml:"labels"`
	TotalLabels int      `yaml:"total_labels"`
	Layout      string   `yaml:"layout"` // "positional" (default) or "numbered"
	Points      []Point  `yaml:"points"`
}

// layout is the resolved target layout for one level.
type layout struct {
	kind   TargetKind
	points []Point
}
