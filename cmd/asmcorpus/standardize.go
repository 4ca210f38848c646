package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"asmcorpus/internal/corpus"
	"asmcorpus/internal/standardize"
)

var standardizeCmd = &cobra.Command{
	Use:   "standardize [flags] <file.s>...",
	Short: "Print the canonical instruction stream of assembly files",
	Long: `Standardize assembly files the way preprocess does before writing the
dataset. The dialect defaults to the configured corpus.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStandardize,
}

func init() {
	standardizeCmd.Flags().String("dialect", "", fmt.Sprintf("assembly dialect (%s)", strings.Join(standardize.Names(), "|")))
	standardizeCmd.Flags().String("symbol", "", "target function symbol")
}

func runStandardize(cmd *cobra.Command, args []string) error {
	dialectName, err := cmd.Flags().GetString("dialect")
	if err != nil {
		return fmt.Errorf("failed to get dialect flag: %w", err)
	}
	symbol, err := cmd.Flags().GetString("symbol")
	if err != nil {
		return fmt.Errorf("failed to get symbol flag: %w", err)
	}

	var dialect standardize.Dialect
	if dialectName == "" {
		cfg, err := loadConfigFor(cmd)
		if err != nil {
			return err
		}
		strategy, err := corpus.Lookup(cfg.Dataset.Corpus)
		if err != nil {
			return err
		}
		if symbol == "" {
			symbol = cfg.Toolchain.Symbol
		}
		dialect, err = strategy.NewDialect(symbol)
		if err != nil {
			return err
		}
	} else {
		if symbol == "" && dialectName == standardize.ObjdumpDialectName {
			symbol = standardize.DefaultTargetSymbol
		}
		dialect, err = standardize.Lookup(dialectName, symbol)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for i, path := range args {
		stream, err := standardize.File(dialect, path)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "# %s\n", path)
		}
		fmt.Fprint(out, stream.String())
	}
	return nil
}
