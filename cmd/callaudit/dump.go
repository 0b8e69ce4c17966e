package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/715d/callaudit/pkg/universe"
)

func newDumpCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dump [packages...]",
		Short: "Write the instruction universe of Go packages",
		Long: `dump loads and lowers Go packages and writes the resulting modules as JSON.
The file can be audited later with --module, without the sources.`,
		Example: `  callaudit dump -o universe.json ./...
  callaudit --module universe.json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Packages = []string{"./..."}
			if len(args) > 0 {
				cfg.Packages = args
			}
			fc, dir, err := loadFileConfig(cfg.ConfigFile, cfg.Root)
			if err != nil {
				return errWithCode(err, exitError)
			}
			fc.merge(&cfg, cmd.Flags(), dir)

			modules, err := loadUniverse(cmd.Context(), &cfg, fc)
			if err != nil {
				return errWithCode(fmt.Errorf("lowering packages: %w", err), exitError)
			}
			if err := writeUniverse(cmd.OutOrStdout(), output, modules); err != nil {
				return errWithCode(err, exitError)
			}
			slog.Info("wrote universe", "modules", len(modules), "output", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	f.StringVar(&cfg.Root, "root", ".", "Directory the packages are loaded from")
	f.BoolVar(&cfg.SkipGenerated, "skip-generated", true, "Suppress functions in files with generated code markers")
	f.BoolVar(&cfg.Tests, "tests", false, "Also lower _test.go files")
	f.BoolVar(&cfg.IncludeDeps, "include-deps", false, "Lower non-standard-library dependencies too")
	return cmd
}

func writeUniverse(stdout io.Writer, path string, modules []*universe.Module) error {
	if path == "" || path == "-" {
		return universe.WriteModules(stdout, modules)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := universe.WriteModules(f, modules); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
