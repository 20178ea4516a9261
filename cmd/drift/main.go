package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruizrica/drift/internal/config"
	"github.com/ruizrica/drift/internal/drift"
	"github.com/ruizrica/drift/internal/gate"
	"github.com/ruizrica/drift/internal/manifest"
	"github.com/ruizrica/drift/internal/version"
	"github.com/ruizrica/drift/internal/watch"
)

// loadConfigWithOverrides loads configuration and merges --root/--include/
// --exclude CLI flags into it before any command runs.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	root := c.String("root")
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.LoadWithRoot(configPath, absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:                   "drift",
		Usage:                  "Architectural drift analysis for evolving codebases",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   ".drift.kdl",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory to scan (overrides config)",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "Walk the project and detect patterns and violations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "incremental", Aliases: []string{"i"}, Usage: "Only rescan files changed since the last manifest"},
					&cli.BoolFlag{Name: "critical-only", Usage: "Run only critical detectors"},
					&cli.IntFlag{Name: "workers", Usage: "Parallel file workers (0 = config default)"},
					&cli.BoolFlag{Name: "json", Usage: "Print the scan result as JSON"},
				},
				Action: scanCommand,
			},
			{
				Name:  "query",
				Usage: "Query the persisted manifest",
				Subcommands: []*cli.Command{
					{
						Name:  "pattern",
						Usage: "Find manifest entries by file glob and/or name",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "glob", Usage: "File glob to match"},
							&cli.StringFlag{Name: "name", Usage: "Pattern name substring to match"},
						},
						Action: queryPatternCommand,
					},
					{
						Name:      "file",
						Usage:     "Show the manifest entry for one file",
						ArgsUsage: "<relative-path>",
						Action:    queryFileCommand,
					},
				},
			},
			{
				Name:  "gate",
				Usage: "Run quality gates against the current project state",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "gate", Usage: "Gate IDs to run (default: all built-in gates)"},
					&cli.StringFlag{Name: "aggregation", Value: string(gate.AggregationAll), Usage: "any|all|weighted|threshold"},
					&cli.Float64Flag{Name: "threshold", Value: 70},
					&cli.StringFlag{Name: "branch", Value: "main"},
					&cli.StringFlag{Name: "commit"},
				},
				Action: gateCommand,
			},
			{
				Name:  "history",
				Usage: "Show recent gate runs and health snapshots",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10},
					&cli.StringFlag{Name: "branch", Value: "main"},
				},
				Action: historyCommand,
			},
			{
				Name:  "watch",
				Usage: "Watch the project and incrementally re-merge changed files",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "debounce-ms", Value: 300},
					&cli.BoolFlag{Name: "save-only", Usage: "Only react to save events, not every fs notification"},
				},
				Action: watchCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "drift: %v\n", err)
		os.Exit(1)
	}
}

func scanCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	opts := drift.ScanOptions{
		Incremental:  c.Bool("incremental"),
		CriticalOnly: c.Bool("critical-only"),
		Workers:      c.Int("workers"),
	}
	result, err := drift.Scan(context.Background(), cfg.Project.Root, opts)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if c.Bool("json") {
		return printJSON(result)
	}
	fmt.Printf("scanned %d files (%d errored)\n", result.FilesScanned, result.FilesErrored)
	fmt.Printf("patterns discovered: %d\n", len(result.Patterns))
	fmt.Printf("violations: %d\n", len(result.Violations))
	return nil
}

func queryPatternCommand(c *cli.Context) error {
	root, err := resolvedRoot(c)
	if err != nil {
		return err
	}
	results, err := drift.QueryManifestByPattern(root, manifest.PatternQuery{
		FileGlob:  c.String("glob"),
		NameQuery: c.String("name"),
	})
	if err != nil {
		return err
	}
	return printJSON(results)
}

func queryFileCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: drift query file <relative-path>")
	}
	root, err := resolvedRoot(c)
	if err != nil {
		return err
	}
	result, err := drift.QueryManifestByFile(root, manifest.FileQuery{File: c.Args().First()})
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("no manifest entry for that file")
		return nil
	}
	return printJSON(result)
}

func gateCommand(c *cli.Context) error {
	root, err := resolvedRoot(c)
	if err != nil {
		return err
	}

	gateIDs := c.StringSlice("gate")
	if len(gateIDs) == 0 {
		gateIDs = []string{
			"pattern-compliance", "constraint-verification", "regression",
			"impact-simulation", "security-boundary", "custom-rules",
		}
	}
	gates := make([]gate.GateConfig, 0, len(gateIDs))
	for _, id := range gateIDs {
		gates = append(gates, gate.GateConfig{ID: id})
	}

	policy := gate.Policy{
		Gates:          gates,
		Aggregation:    gate.AggregationMode(c.String("aggregation")),
		Threshold:      c.Float64("threshold"),
		WeightedPassAt: c.Float64("threshold"),
	}

	result, err := drift.RunGatePolicy(context.Background(), root, policy, gate.GateInput{
		ProjectRoot: root,
		Branch:      c.String("branch"),
		CommitSha:   c.String("commit"),
	})
	if err != nil {
		return fmt.Errorf("gate run failed: %w", err)
	}

	fmt.Printf("overall: %s (score %.1f)\n", result.Overall, result.Score)
	for _, r := range result.Results {
		fmt.Printf("  %-24s %-8s %.1f  %s\n", r.GateID, r.Status, r.Score, r.Summary)
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

func historyCommand(c *cli.Context) error {
	root, err := resolvedRoot(c)
	if err != nil {
		return err
	}
	runs, err := drift.RecentGateRuns(root, c.Int("limit"))
	if err != nil {
		return err
	}
	snaps, err := drift.RecentHealthSnapshots(root, c.String("branch"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(struct {
		Runs      []gate.RunRecord     `json:"runs"`
		Snapshots []gate.HealthSnapshot `json:"snapshots"`
	}{Runs: runs, Snapshots: snaps})
}

func watchCommand(c *cli.Context) error {
	root, err := resolvedRoot(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, err := drift.StartWatch(ctx, root, watch.Options{
		DebounceMs: c.Int("debounce-ms"),
		SaveOnly:   c.Bool("save-only"),
	})
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer engine.Stop()

	fmt.Println("watching for changes, press ctrl-c to stop")
	<-ctx.Done()
	fmt.Printf("merged %d change batches\n", engine.MergedCount())
	return nil
}

func resolvedRoot(c *cli.Context) (string, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	return filepath.Abs(root)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
