package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/715d/callaudit/pkg/descriptor"
)

func newRulesCmd() *cobra.Command {
	var set string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the audit rules",
		Long: `rules lists the rules of every module: the configured code rules (the
builtin "go" set by default), the go.mod checks and the asset checks.`,
		Example: `  callaudit rules                # All rules in effect
  callaudit rules --set dotnet   # One builtin rule set
  callaudit rules --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := listRules(set)
			if err != nil {
				return errWithCode(err, exitError)
			}
			return writeRules(cmd.OutOrStdout(), ds, cfg.JSON)
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "List a builtin rule set ("+strings.Join(descriptor.BuiltinSets(), ", ")+")")
	cmd.Flags().StringVar(&cfg.Root, "root", ".", "Project directory holding callaudit.yaml")
	return cmd
}

func listRules(set string) ([]*descriptor.Descriptor, error) {
	if set != "" {
		ds, err := descriptor.Builtin(set)
		if err != nil {
			return nil, err
		}
		out := make([]*descriptor.Descriptor, len(ds))
		for i := range ds {
			out[i] = &ds[i]
		}
		return out, nil
	}

	fc, dir, err := loadFileConfig(cfg.ConfigFile, cfg.Root)
	if err != nil {
		return nil, err
	}
	fc.merge(&cfg, nil, dir)
	auditor, err := newAuditor(&cfg, fc)
	if err != nil {
		return nil, err
	}
	var out []*descriptor.Descriptor
	for _, m := range auditor.Modules() {
		out = append(out, m.Registry().All()...)
	}
	slices.SortFunc(out, func(a, b *descriptor.Descriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

type jRule struct {
	ID       string              `json:"id"`
	Symbol   string              `json:"symbol"`
	Title    string              `json:"title"`
	Severity descriptor.Severity `json:"severity"`
	Areas    []descriptor.Area   `json:"areas,omitempty"`
	Problem  string              `json:"problem,omitempty"`
	Solution string              `json:"solution,omitempty"`
	Fixable  bool                `json:"fixable,omitempty"`
}

func writeRules(w io.Writer, ds []*descriptor.Descriptor, asJSON bool) error {
	if asJSON {
		rules := make([]jRule, 0, len(ds))
		for _, d := range ds {
			rules = append(rules, jRule{
				ID:       d.ID,
				Symbol:   d.Symbol(),
				Title:    d.Title,
				Severity: d.Severity,
				Areas:    d.Areas,
				Problem:  d.Problem,
				Solution: d.Solution,
				Fixable:  d.Fixer != nil,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	}

	for _, d := range ds {
		if _, err := fmt.Fprintf(w, "%-8s %-9s %-40s %s\n", d.ID, d.Severity, d.Symbol(), d.Title); err != nil {
			return err
		}
	}
	return nil
}
