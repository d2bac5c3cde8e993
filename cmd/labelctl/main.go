// Command labelctl checks content files and inspects stored player progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/platform/config"
	"github.com/p-n-ai/labelquest/internal/platform/database"
	"github.com/p-n-ai/labelquest/internal/progression"
	"github.com/p-n-ai/labelquest/internal/report"
	"github.com/p-n-ai/labelquest/internal/stats"
)

var errInvalidContent = errors.New("content has problems")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var catalogPath string

	root := &cobra.Command{
		Use:           "labelctl",
		Short:         "Label quest content and progress tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&catalogPath, "catalog", os.Getenv("LEARN_CATALOG_PATH"), "content directory (built-in content when empty)")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newTopicsCmd(&catalogPath))
	root.AddCommand(newStatsCmd(&catalogPath))
	root.AddCommand(newExportCmd(&catalogPath))
	return root
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Builtin()
	}
	return catalog.NewLoader(path)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check every topic file in a content directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := catalog.ValidateFS(os.DirFS(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				_, _ = fmt.Fprintln(out, "ok")
				return nil
			}
			for _, p := range problems {
				_, _ = fmt.Fprintln(out, p.Error())
			}
			return fmt.Errorf("%w: %d file(s)", errInvalidContent, len(problems))
		},
	}
}

func newTopicsCmd(catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List topics and their levels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(*catalogPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tLEVELS")
			for _, t := range cat.Topics() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.ID, t.Title, t.Category, len(cat.Levels(t.ID)))
			}
			return tw.Flush()
		},
	}
}

func newStatsCmd(catalogPath *string) *cobra.Command {
	var playerID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a player's stored progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(*catalogPath)
			if err != nil {
				return err
			}
			records, err := playerRecords(cmd.Context(), playerID)
			if err != nil {
				return err
			}
			overall := stats.ForCatalog(cat, progression.CompletedSet(records))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d levels (%d%%)\n", playerID, overall.TotalCompleted, overall.TotalLevels, overall.Percent)
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

func newExportCmd(catalogPath *string) *cobra.Command {
	var playerID, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a player's progress workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(*catalogPath)
			if err != nil {
				return err
			}
			records, err := playerRecords(cmd.Context(), playerID)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = "labelquest-" + playerID + ".xlsx"
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := report.WriteWorkbook(f, report.Build(cat, playerID, records, time.Now())); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d completed levels)\n", outPath, len(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default labelquest-<player>.xlsx)")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

// playerRecords reads records from the store configured by the LEARN_
// environment.
func playerRecords(ctx context.Context, playerID string) ([]progression.Record, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case config.DriverSQLite:
		store, err := progression.NewSQLiteStore(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Records(ctx, playerID)

	case config.DriverPostgres:
		db, err := database.New(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		defer db.Close()
		store, err := progression.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, err
		}
		return store.Records(ctx, playerID)

	default:
		return nil, fmt.Errorf("store driver %q keeps no progress between runs; set LEARN_STORE_DRIVER to sqlite or postgres", cfg.Store.Driver)
	}
}
