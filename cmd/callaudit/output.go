package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/715d/callaudit/pkg/calltree"
	"github.com/715d/callaudit/pkg/issue"
)

func writeResults(w io.Writer, result *Result, cfg *Config) error {
	var output string
	var err error

	if cfg.JSON {
		output, err = formatJSONOutput(result)
	} else {
		output = formatTextOutput(result, cfg)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(w, output)
	return err
}

type jOutput struct {
	RunID         string         `json:"run_id"`
	Authoritative bool           `json:"authoritative"`
	Issues        []*issue.Issue `json:"issues"`
	Baseline      *jBaseline     `json:"baseline,omitempty"`
	Stats         jStats         `json:"stats"`
	Version       string         `json:"version"`
	Timestamp     string         `json:"timestamp"`
}

type jBaseline struct {
	RunID     string         `json:"run_id,omitempty"`
	Added     []*issue.Issue `json:"added"`
	Resolved  []issue.Record `json:"resolved"`
	Unchanged int            `json:"unchanged"`
}

type jStats struct {
	Modules          map[string]jModule `json:"modules"`
	Issues           int                `json:"issues"`
	AnalysisDuration time.Duration      `json:"analysis_duration"`
}

type jModule struct {
	Status       string `json:"status"`
	Units        int    `json:"units"`
	Issues       int    `json:"issues"`
	DecodeErrors int    `json:"decode_errors,omitempty"`
}

func formatJSONOutput(result *Result) (string, error) {
	issues := result.Report.All()
	if issues == nil {
		issues = []*issue.Issue{}
	}
	out := jOutput{
		RunID:         result.Report.RunID(),
		Authoritative: result.Report.Authoritative(),
		Issues:        issues,
		Stats: jStats{
			Modules:          make(map[string]jModule, len(result.Modules)),
			Issues:           len(issues),
			AnalysisDuration: result.AnalysisDuration,
		},
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for name, res := range result.Modules {
		out.Stats.Modules[name] = jModule{
			Status:       res.Status.String(),
			Units:        res.Methods,
			Issues:       res.Issues,
			DecodeErrors: res.DecodeErrors,
		}
	}
	if d := result.Diff; d != nil {
		out.Baseline = &jBaseline{
			RunID:     result.BaselineRunID,
			Added:     d.Added,
			Resolved:  d.Resolved,
			Unchanged: len(d.Unchanged),
		}
		if out.Baseline.Added == nil {
			out.Baseline.Added = []*issue.Issue{}
		}
		if out.Baseline.Resolved == nil {
			out.Baseline.Resolved = []issue.Record{}
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(result *Result, cfg *Config) string {
	var output strings.Builder

	if cfg.Verbose {
		for name, res := range result.Modules {
			slog.Info("module", "name", name, "status", res.Status,
				"units", res.Methods, "issues", res.Issues, "decode_errors", res.DecodeErrors)
		}
		slog.Info("", "issues", result.Report.Len(), "analysis_duration", result.AnalysisDuration.String())
	}

	issues := result.Report.All()
	if result.Diff != nil {
		issues = result.Diff.Added
	}

	for _, i := range issues {
		output.WriteString(i.String())
		output.WriteByte('\n')
		if cfg.Verbose && i.CallTree != nil {
			writeTree(&output, i.CallTree.Caller(), 1)
		}
	}

	if d := result.Diff; d != nil {
		for _, rec := range d.Resolved {
			fmt.Fprintf(&output, "resolved: %s %s %s\n", rec.Location.String(), rec.DescriptorID, rec.Description)
		}
		fmt.Fprintf(&output, "%s new, %s resolved, %s unchanged\n",
			humanize.Comma(int64(len(d.Added))),
			humanize.Comma(int64(len(d.Resolved))),
			humanize.Comma(int64(len(d.Unchanged))))
	} else if len(issues) == 0 {
		slog.Info("no issues found")
	}

	if !result.Report.Authoritative() {
		output.WriteString("warning: the audit did not complete, results are partial\n")
	}
	return output.String()
}

// writeTree prints the callers below n, one indented line per frame.
func writeTree(b *strings.Builder, n *calltree.Node, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("<- ")
	b.WriteString(n.PrettyName())
	if n.Location != nil {
		b.WriteString(" (" + n.Location.String() + ")")
	}
	if n.Hot {
		b.WriteString(" [hot]")
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		writeTree(b, c, depth+1)
	}
}
