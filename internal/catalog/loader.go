package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed content/*.yaml
var builtinContent embed.FS

// Builtin loads the catalog shipped with the binary.
func Builtin() (*Catalog, error) {
	sub, err := fs.Sub(builtinContent, "content")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// NewLoader loads every topic file under rootDir.
func NewLoader(rootDir string) (*Catalog, error) {
	return LoadFS(os.DirFS(rootDir))
}

// LoadFS loads every topic YAML file found in fsys. Any invalid topic file
// fails the whole load.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	c := newCatalog()

	files, err := topicFiles(fsys)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	for _, p := range files {
		doc, problem, err := readDocument(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		if problem != nil {
			return nil, fmt.Errorf("loading catalog: %w", problem)
		}
		if doc == nil {
			continue
		}
		if _, dup := c.topics[doc.ID]; dup {
			return nil, fmt.Errorf("loading catalog: %s: duplicate topic id %q", p, doc.ID)
		}
		c.add(*doc)
	}

	slog.Info("catalog loaded", "topics", len(c.topics), "levels", c.TotalLevels())
	return c, nil
}

// ValidateFS checks every topic file in fsys and reports all problems found.
func ValidateFS(fsys fs.FS) ([]Problem, error) {
	files, err := topicFiles(fsys)
	if err != nil {
		return nil, err
	}

	var problems []Problem
	ids := make(map[string]string)
	for _, p := range files {
		doc, problem, err := readDocument(fsys, p)
		if err != nil {
			return nil, err
		}
		if problem != nil {
			problems = append(problems, *problem)
			continue
		}
		if doc == nil {
			continue
		}
		if first, dup := ids[doc.ID]; dup {
			problems = append(problems, Problem{Path: p, Details: []string{fmt.Sprintf("topic id %q already defined in %s", doc.ID, first)}})
			continue
		}
		ids[doc.ID] = p
	}
	return problems, nil
}

func topicFiles(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := path.Ext(p)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// readDocument parses one file. A nil document with a nil problem means the
// file is not a topic file and is skipped.
func readDocument(fsys fs.FS, p string) (*document, *Problem, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", p, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Problem{Path: p, Details: []string{err.Error()}}, nil
	}
	if _, ok := raw["id"]; !ok {
		slog.Warn("skipping non-topic YAML", "path", p)
		return nil, nil, nil
	}

	msgs, err := validateSchema(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", p, err)
	}
	if len(msgs) > 0 {
		return nil, &Problem{Path: p, Details: msgs}, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Problem{Path: p, Details: []string{err.Error()}}, nil
	}
	if msgs := validateDocument(doc); len(msgs) > 0 {
		return nil, &Problem{Path: p, Details: msgs}, nil
	}
	return &doc, nil, nil
}

func (c *Catalog) add(doc document) {
	c.topics[doc.ID] = doc.Topic

	docs := append([]levelDocument(nil), doc.Levels...)
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ordinal < docs[j].Ordinal })

	levels := make([]Level, 0, len(docs))
	for _, ld := range docs {
		id := strings.TrimSpace(ld.ID)
		if id == "" {
			id = LevelID(doc.ID, ld.Ordinal)
		}
		lvl := Level{
			ID:          id,
			TopicID:     doc.ID,
			Ordinal:     ld.Ordinal,
			Title:       ld.Title,
			Description: ld.Description,
			Labels:      append([]string(nil), ld.Labels...),
			TotalLabels: len(ld.Labels),
		}
		levels = append(levels, lvl)

		kind := TargetPositional
		if ld.Layout == string(TargetNumbered) {
			kind = TargetNumbered
		}
		c.layouts[id] = layout{kind: kind, points: append([]Point(nil), ld.Points...)}
	}
	c.levels[doc.ID] = levels
}
