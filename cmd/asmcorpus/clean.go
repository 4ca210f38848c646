package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asmcorpus/internal/cache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the working directories of the configured dataset",
	Long: `Remove the cleaned-source and assembly working directories. With --cache
the stage cache is dropped as well; with --output the dataset file too.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("cache", false, "also drop the stage cache")
	cleanCmd.Flags().Bool("output", false, "also remove the dataset file")
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfigFor(cmd)
	if err != nil {
		return err
	}
	dropCache, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return fmt.Errorf("failed to get cache flag: %w", err)
	}
	dropOutput, err := cmd.Flags().GetBool("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}

	out := cmd.OutOrStdout()
	quiet := quietFlag(cmd)
	targets := []string{cfg.resolve(cfg.Dataset.SourceDir), cfg.resolve(cfg.Dataset.AsmDir)}
	if dropOutput {
		targets = append(targets, cfg.outputPath())
	}
	for _, target := range targets {
		removed, err := removeTarget(target)
		if err != nil {
			return err
		}
		if quiet {
			continue
		}
		if removed {
			fmt.Fprintf(out, "removed %s\n", target)
		} else {
			fmt.Fprintf(out, "%s not found\n", target)
		}
	}

	if dropCache {
		dir, err := cfg.cacheDir()
		if err != nil {
			return fmt.Errorf("failed to resolve cache dir: %w", err)
		}
		store, err := cache.Open(dir)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		if err := store.DropAll(); err != nil {
			return fmt.Errorf("failed to drop cache: %w", err)
		}
		if !quiet {
			fmt.Fprintf(out, "dropped cache %s\n", store.Dir())
		}
	}
	return nil
}

func removeTarget(path string) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return true, nil
}
