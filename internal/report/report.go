// Package report exports a player's progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/progression"
	"github.com/p-n-ai/labelquest/internal/stats"
)

const (
	SheetSummary = "Summary"
	SheetTopics  = "Topics"
	SheetLevels  = "Levels"
)

// TopicRow is one line of the Topics sheet.
type TopicRow struct {
	Topic     catalog.Topic
	Completed int
	Total     int
}

// LevelRow is one line of the Levels sheet.
type LevelRow struct {
	progression.LevelState
	Attempts    int
	CompletedAt time.Time
}

// Report is everything written to the workbook.
type Report struct {
	PlayerID    string
	GeneratedAt time.Time
	Overall     stats.Overall
	Topics      []TopicRow
	Levels      []LevelRow
}

// Build assembles the report of playerID from the catalog and the player's
// completion records.
func Build(cat *catalog.Catalog, playerID string, records []progression.Record, now time.Time) Report {
	completed := progression.CompletedSet(records)
	byLevel := make(map[string]progression.Record, len(records))
	for _, r := range records {
		byLevel[r.LevelID] = r
	}

	r := Report{
		PlayerID:    playerID,
		GeneratedAt: now,
		Overall:     stats.ForCatalog(cat, completed),
	}
	for _, t := range cat.Topics() {
		levels := cat.Levels(t.ID)
		r.Topics = append(r.Topics, TopicRow{
			Topic:     t,
			Completed: stats.TopicProgress(levels, completed),
			Total:     len(levels),
		})
		for _, st := range progression.LevelStates(levels, records) {
			rec := byLevel[st.Level.ID]
			r.Levels = append(r.Levels, LevelRow{
				LevelState:  st,
				Attempts:    rec.Attempts,
				CompletedAt: rec.CompletedAt,
			})
		}
	}
	return r
}

// WriteWorkbook writes r as an XLSX workbook with Summary, Topics and Levels
// sheets.
func WriteWorkbook(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetTopics, SheetLevels} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	summary := [][]any{
		{"Player", r.PlayerID},
		{"Generated", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Levels", r.Overall.TotalLevels},
		{"Completed", r.Overall.TotalCompleted},
		{"Percent", r.Overall.Percent},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), header); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	topics := [][]any{{"Topic", "Title", "Category", "Completed", "Total"}}
	for _, t := range r.Topics {
		topics = append(topics, []any{t.Topic.ID, t.Topic.Title, string(t.Topic.Category), t.Completed, t.Total})
	}
	if err := writeTable(f, SheetTopics, topics, header); err != nil {
		return err
	}

	levels := [][]any{{"Level", "Topic", "Ordinal", "Title", "Labels", "Unlocked", "Completed", "Best score", "Attempts", "Completed at"}}
	for _, l := range r.Levels {
		completedAt := ""
		if !l.CompletedAt.IsZero() {
			completedAt = l.CompletedAt.UTC().Format(time.RFC3339)
		}
		levels = append(levels, []any{
			l.Level.ID, l.Level.TopicID, l.Level.Ordinal, l.Level.Title, l.Level.TotalLabels,
			yesNo(l.Unlocked), yesNo(l.Completed), l.BestScore, l.Attempts, completedAt,
		})
	}
	if err := writeTable(f, SheetLevels, levels, header); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, rows [][]any, header int) error {
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
		return fmt.Errorf("style %s: %w", sheet, err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze %s: %w", sheet, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
