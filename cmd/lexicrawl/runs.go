package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/lexicrawl/internal/config"
	"github.com/nao1215/lexicrawl/internal/database"
	"github.com/nao1215/lexicrawl/internal/model"
	"github.com/nao1215/lexicrawl/internal/report"
)

// defaultRunLimit is how many runs are listed without --limit.
const defaultRunLimit = 20

// NewRunsCmd creates the runs command.
// It browses the run history stored by the crawl command.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id...]",
		Short: "Browse and compare previous crawl runs",
		Long: `Runs shows the crawl history stored in the run database.

Without arguments it lists the most recent runs. With one run ID it prints
that run's report. With --compare and two run IDs it shows which entries
were added, removed or changed between them.

Examples:
  # List the 20 most recent runs
  lexicrawl runs

  # Print the report of run 7 as Markdown
  lexicrawl runs -m 7

  # Compare run 7 with run 9
  lexicrawl runs --compare 7 9

  # Show every stored version of one entry
  lexicrawl runs --entry "lo/gos"

  # Delete run 3
  lexicrawl runs --delete 3`,
		Args: cobra.MaximumNArgs(2),
		RunE: runRunsCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultRunLimit,
		"Number of runs to list (0 = all)")
	cmd.Flags().Bool("compare", false,
		"Compare two runs given as arguments (older first)")
	cmd.Flags().String("entry", "",
		"Show the stored versions of the entry with this key")
	cmd.Flags().Int64("delete", 0,
		"Delete the run with this ID")
	cmd.Flags().String("db-dir", "",
		"Directory holding the run database (default: XDG data directory)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	return cmd
}

// runsOptions are the parsed flags of the runs command.
type runsOptions struct {
	limit    int
	compare  bool
	entry    string
	deleteID int64
	dbDir    string
	json     bool
	markdown bool
	verbose  bool
}

func parseRunsOptions(cmd *cobra.Command) (runsOptions, error) {
	var o runsOptions
	var err error
	flags := cmd.Flags()

	if o.limit, err = flags.GetInt("limit"); err != nil {
		return o, err
	}
	if o.compare, err = flags.GetBool("compare"); err != nil {
		return o, err
	}
	if o.entry, err = flags.GetString("entry"); err != nil {
		return o, err
	}
	if o.deleteID, err = flags.GetInt64("delete"); err != nil {
		return o, err
	}
	if o.dbDir, err = flags.GetString("db-dir"); err != nil {
		return o, err
	}
	if o.json, err = flags.GetBool("json"); err != nil {
		return o, err
	}
	if o.markdown, err = flags.GetBool("markdown"); err != nil {
		return o, err
	}
	if o.json && o.markdown {
		return o, config.NewError("report", config.ErrConflictingReportFormats)
	}
	if o.dbDir == "" {
		o.dbDir = config.XDGDataDir()
	}
	o.verbose = getBoolFlag(cmd, "verbose")
	return o, nil
}

// runRunsCmd executes the runs command.
func runRunsCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseRunsOptions(cmd)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid run ID %q", arg)
		}
		ids = append(ids, id)
	}
	if opts.compare && len(ids) != 2 {
		return errors.New("--compare needs exactly two run IDs")
	}
	if !opts.compare && len(ids) > 1 {
		return errors.New("use --compare to pass two run IDs")
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case opts.deleteID > 0:
		if err := db.DeleteRun(ctx, opts.deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run %d\n", opts.deleteID)
		return nil
	case opts.entry != "":
		return showEntryHistory(ctx, db, opts, out)
	case opts.compare:
		return compareRuns(ctx, db, ids[0], ids[1], opts, out)
	case len(ids) == 1:
		return showRun(ctx, db, ids[0], opts, out)
	default:
		return listRuns(ctx, db, opts, out)
	}
}

// listRuns prints the most recent runs.
func listRuns(ctx context.Context, db *database.RunDB, opts runsOptions, out io.Writer) error {
	runs, err := db.ListRuns(ctx, opts.limit)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'lexicrawl crawl <seed>' to crawl a lexicon.")
		return nil
	}

	if opts.markdown {
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				strconv.FormatInt(r.ID, 10),
				r.StartedAt.Format("2006-01-02 15:04"),
				strconv.Itoa(r.PagesVisited),
				strconv.Itoa(r.DetailsFetched),
				strconv.Itoa(r.Failures),
				runStatus(r.Cancelled),
				"`" + r.Seed + "`",
			})
		}
		return markdown.NewMarkdown(out).
			H1("lexicrawl Runs").
			PlainText("").
			Table(markdown.TableSet{
				Header: []string{"ID", "Started", "Pages", "Entries", "Failures", "Status", "Seed"},
				Rows:   rows,
			}).
			Build()
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-16s  %6s  %8s  %8s  %-9s  %s\n",
		"ID", "Started", "Pages", "Entries", "Failures", "Status", "Seed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 78))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-16s  %6d  %8d  %8d  %-9s  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.PagesVisited,
			r.DetailsFetched,
			r.Failures,
			runStatus(r.Cancelled),
			r.Seed,
		)
	}
	fmt.Fprintln(out, "\nUse 'lexicrawl runs <id>' to see a run's report.")
	return nil
}

func runStatus(cancelled bool) string {
	if cancelled {
		return "partial"
	}
	return "complete"
}

// showRun prints the report of one run with the regular report writers.
func showRun(ctx context.Context, db *database.RunDB, id int64, opts runsOptions, out io.Writer) error {
	r, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}

	var writer report.Writer
	switch {
	case opts.json:
		writer = report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case opts.markdown:
		writer = report.NewMarkdownWriter(out)
	default:
		writer = report.NewSimpleWriter(out, report.WithVerbose(opts.verbose))
	}
	_, err = writer.Write(r)
	return err
}

// showEntryHistory prints every stored version of one entry.
func showEntryHistory(ctx context.Context, db *database.RunDB, opts runsOptions, out io.Writer) error {
	versions, err := db.EntryHistory(ctx, opts.entry)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(out, versions)
	}

	if len(versions) == 0 {
		fmt.Fprintf(out, "No stored versions of %q\n", opts.entry)
		return nil
	}

	fmt.Fprintf(out, "Versions of %q (%d):\n\n", opts.entry, len(versions))
	for _, v := range versions {
		fmt.Fprintf(out, "  %s  %8d bytes  %s\n",
			v.FetchedAt.Local().Format("2006-01-02 15:04:05"),
			v.Size,
			shortHash(v.Hash),
		)
	}
	return nil
}

// RunComparison holds the differences between two runs.
type RunComparison struct {
	Previous RunMetadata `json:"previous"`
	Current  RunMetadata `json:"current"`

	// Added are entries of the current run whose URL the previous run lacked.
	Added []EntryChange `json:"added,omitempty"`

	// Removed are entries of the previous run missing from the current run.
	Removed []EntryChange `json:"removed,omitempty"`

	// Changed are entries present in both runs with a different hash.
	Changed []EntryChange `json:"changed,omitempty"`

	UnchangedCount int `json:"unchanged_count"`
}

// RunMetadata describes one side of a comparison.
type RunMetadata struct {
	ID        int64     `json:"id"`
	Seed      string    `json:"seed"`
	StartedAt time.Time `json:"started_at"`
	Entries   int       `json:"entries"`
	Failures  int       `json:"failures"`
	Cancelled bool      `json:"cancelled"`
}

// EntryChange is one entry that differs between two runs.
type EntryChange struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	OldHash string `json:"old_hash,omitempty"`
	NewHash string `json:"new_hash,omitempty"`
}

func newRunMetadata(r *model.CrawlReport) RunMetadata {
	return RunMetadata{
		ID:        r.ID,
		Seed:      r.Seed,
		StartedAt: r.StartedAt,
		Entries:   len(r.Entries),
		Failures:  len(r.Failures),
		Cancelled: r.Cancelled,
	}
}

// diffRuns compares entries by URL. Added and changed entries follow the
// current run's discovery order, removed ones the previous run's.
func diffRuns(previous, current *model.CrawlReport) *RunComparison {
	result := &RunComparison{
		Previous: newRunMetadata(previous),
		Current:  newRunMetadata(current),
	}

	before := make(map[string]model.DetailResult, len(previous.Entries))
	for _, e := range previous.Entries {
		before[e.URL] = e
	}
	after := make(map[string]struct{}, len(current.Entries))

	for _, e := range current.Entries {
		after[e.URL] = struct{}{}
		old, ok := before[e.URL]
		switch {
		case !ok:
			result.Added = append(result.Added, EntryChange{Name: e.Name(), URL: e.URL, NewHash: e.Hash})
		case old.Hash != e.Hash:
			result.Changed = append(result.Changed, EntryChange{Name: e.Name(), URL: e.URL, OldHash: old.Hash, NewHash: e.Hash})
		default:
			result.UnchangedCount++
		}
	}

	for _, e := range previous.Entries {
		if _, ok := after[e.URL]; !ok {
			result.Removed = append(result.Removed, EntryChange{Name: e.Name(), URL: e.URL, OldHash: e.Hash})
		}
	}

	return result
}

// compareRuns loads two runs and prints their differences.
func compareRuns(ctx context.Context, db *database.RunDB, previousID, currentID int64, opts runsOptions, out io.Writer) error {
	previous, err := db.GetRun(ctx, previousID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", previousID, err)
	}
	current, err := db.GetRun(ctx, currentID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", currentID, err)
	}

	result := diffRuns(previous, current)

	switch {
	case opts.json:
		return writeJSON(out, result)
	case opts.markdown:
		return outputComparisonMarkdown(out, result)
	default:
		outputComparisonText(out, result)
		return nil
	}
}

func outputComparisonText(out io.Writer, result *RunComparison) {
	fmt.Fprintf(out, "Run %d (%s) -> run %d (%s)\n\n",
		result.Previous.ID, result.Previous.StartedAt.Local().Format("2006-01-02 15:04"),
		result.Current.ID, result.Current.StartedAt.Local().Format("2006-01-02 15:04"))

	if result.Previous.Seed != result.Current.Seed {
		fmt.Fprintln(out, "Note: the runs started from different seeds.")
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "  Entries:   %d -> %d (%s)\n",
		result.Previous.Entries, result.Current.Entries,
		formatDelta(result.Current.Entries-result.Previous.Entries))
	fmt.Fprintf(out, "  Failures:  %d -> %d (%s)\n",
		result.Previous.Failures, result.Current.Failures,
		formatDelta(result.Current.Failures-result.Previous.Failures))
	fmt.Fprintf(out, "  Unchanged: %d\n", result.UnchangedCount)

	writeChanges := func(title, marker string, changes []EntryChange) {
		if len(changes) == 0 {
			return
		}
		fmt.Fprintf(out, "\n%s (%d):\n", title, len(changes))
		for _, c := range changes {
			fmt.Fprintf(out, "  %s %s\n", marker, c.Name)
		}
	}
	writeChanges("Added", "+", result.Added)
	writeChanges("Changed", "~", result.Changed)
	writeChanges("Removed", "-", result.Removed)
}

func outputComparisonMarkdown(out io.Writer, result *RunComparison) error {
	md := markdown.NewMarkdown(out)
	md.H1(fmt.Sprintf("Run Comparison: %d -> %d", result.Previous.ID, result.Current.ID))
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Started", result.Previous.StartedAt.Format("2006-01-02 15:04"), result.Current.StartedAt.Format("2006-01-02 15:04"), "-"},
			{"Entries", strconv.Itoa(result.Previous.Entries), strconv.Itoa(result.Current.Entries), formatDelta(result.Current.Entries - result.Previous.Entries)},
			{"Failures", strconv.Itoa(result.Previous.Failures), strconv.Itoa(result.Current.Failures), formatDelta(result.Current.Failures - result.Previous.Failures)},
		},
	})
	md.PlainText("")

	section := func(title string, changes []EntryChange) {
		if len(changes) == 0 {
			return
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(changes)))
		md.PlainText("")
		items := make([]string, 0, len(changes))
		for _, c := range changes {
			items = append(items, "`"+c.Name+"`")
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	section("Added", result.Added)
	section("Changed", result.Changed)
	section("Removed", result.Removed)

	md.PlainTextf("%d entries unchanged.", result.UnchangedCount)
	return md.Build()
}

// formatDelta formats a delta value with sign.
func formatDelta(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return strconv.Itoa(delta)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
