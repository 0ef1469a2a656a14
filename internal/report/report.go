// Package report renders sync results for people and for machines.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goccy/go-json"

	"github.com/schaermu/speckit-sync/internal/sync"
)

// DefaultPreviewLimit bounds how many paths are listed per exclusion reason.
const DefaultPreviewLimit = 20

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// Actions writes one line per planned file, followed by skips and failures.
func Actions(w io.Writer, res sync.Result) {
	for _, f := range res.Files {
		fmt.Fprintf(w, "  %s %s\n", actionTag(f.Action), f.RelPath)
	}
	for _, s := range res.Skips {
		fmt.Fprintf(w, "  %s %s %s\n", dim("[SKIP]  "), s.Path, dim("("+string(s.Reason)+")"))
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s %s: %s\n", red("[ERROR] "), f.Path, f.Err)
	}
}

func actionTag(a sync.Action) string {
	switch a {
	case sync.ActionCreate:
		return green("[CREATE]")
	case sync.ActionUpdate:
		return yellow("[UPDATE]")
	case sync.ActionDelete:
		return red("[DELETE]")
	default:
		return fmt.Sprintf("[%s]", a)
	}
}

// Group is the exclusions sharing one reason. Paths may be truncated;
// Total is always the full count.
type Group struct {
	Reason sync.Reason
	Paths  []string
	Total  int
}

// GroupByReason groups exclusions by reason, sorted by reason then path.
// A limit of zero or less keeps every path.
func GroupByReason(exclusions []sync.Exclusion, limit int) []Group {
	byReason := map[sync.Reason][]string{}
	for _, e := range exclusions {
		byReason[e.Reason] = append(byReason[e.Reason], e.Path)
	}

	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	groups := make([]Group, 0, len(reasons))
	for _, r := range reasons {
		paths := byReason[sync.Reason(r)]
		sort.Strings(paths)
		g := Group{Reason: sync.Reason(r), Total: len(paths), Paths: paths}
		if limit > 0 && len(paths) > limit {
			g.Paths = paths[:limit]
		}
		groups = append(groups, g)
	}
	return groups
}

// Excluded writes the exclusion audit grouped by reason.
func Excluded(w io.Writer, exclusions []sync.Exclusion, limit int) {
	if len(exclusions) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s\n", bold(fmt.Sprintf("Excluded files (%d):", len(exclusions))))
	for _, g := range GroupByReason(exclusions, limit) {
		fmt.Fprintf(w, "  %s (%d)\n", cyan(string(g.Reason)), g.Total)
		for _, p := range g.Paths {
			fmt.Fprintf(w, "    - %s\n", p)
		}
		if more := g.Total - len(g.Paths); more > 0 {
			fmt.Fprintf(w, "    %s\n", dim(fmt.Sprintf("... and %d more", more)))
		}
	}
}

// Summary writes the final counters. It is printed for every run.
func Summary(w io.Writer, res sync.Result) {
	title := "Sync summary"
	verb := ""
	if res.DryRun {
		title = "Sync preview (no changes applied)"
		verb = "would be "
	}

	fmt.Fprintf(w, "\n%s\n", bold(title))
	fmt.Fprintf(w, "  %-18s %d\n", verb+"created:", res.Created)
	fmt.Fprintf(w, "  %-18s %d\n", verb+"updated:", res.Updated)
	fmt.Fprintf(w, "  %-18s %d\n", verb+"deleted:", res.Deleted)
	fmt.Fprintf(w, "  %-18s %d\n", "skipped:", res.Skipped)
	fmt.Fprintf(w, "  %-18s %d\n", "excluded:", res.Excluded)

	errs := fmt.Sprintf("%d", res.Errors)
	if res.Errors > 0 {
		errs = red(errs + " (see log for details)")
	}
	fmt.Fprintf(w, "  %-18s %s\n", "errors:", errs)

	if !res.DryRun {
		fmt.Fprintf(w, "  %-18s %d\n", "backed up:", res.BackedUp)
		fmt.Fprintf(w, "  %-18s %s\n", "copied:", humanize.Bytes(uint64(res.BytesCopied)))
	}

	if !res.Changed() && res.Errors == 0 {
		fmt.Fprintf(w, "%s\n", green("Already up to date."))
	}
}

// Document is the machine-readable report of a run.
type Document struct {
	WorkRoot     string      `json:"work_root"`
	TemplateRoot string      `json:"template_root"`
	Commit       string      `json:"commit,omitempty"`
	ConfigSource string      `json:"config_source"`
	ConfigPath   string      `json:"config_path,omitempty"`
	ConfigError  string      `json:"config_error,omitempty"`
	Result       sync.Result `json:"result"`
}

// NewDocument builds the report document for a completed run.
func NewDocument(out *sync.Outcome) Document {
	doc := Document{
		WorkRoot:     out.WorkRoot,
		TemplateRoot: out.TemplateRoot,
		Commit:       out.Commit,
		ConfigSource: string(out.ConfigSource),
		ConfigPath:   out.ConfigPath,
		Result:       out.Result,
	}
	if out.ConfigErr != nil {
		doc.ConfigError = out.ConfigErr.Error()
	}
	return doc
}

// JSON writes doc as indented JSON.
func JSON(w io.Writer, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
