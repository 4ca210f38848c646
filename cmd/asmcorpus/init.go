package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default asmcorpus.toml",
	Long: `Write a configuration file with the default dataset layout into [dir]
(the current directory when omitted). The directory is created if needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("yaml", false, "write asmcorpus.yaml instead of TOML")
}

func runInit(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) > 0 && args[0] != "" {
		target = args[0]
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if st, err := os.Stat(target); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", target, err)
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", target)
	}

	useYAML, err := cmd.Flags().GetBool("yaml")
	if err != nil {
		return fmt.Errorf("failed to get yaml flag: %w", err)
	}
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(target, name)); err == nil {
			return fmt.Errorf("already initialized: %s exists", filepath.Join(target, name))
		}
	}

	name, content := appName+".toml", defaultConfigTOML()
	if useYAML {
		name = appName + ".yaml"
		if content, err = defaultConfigYAML(); err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
	}
	path := filepath.Join(target, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if !quietFlag(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	}
	return nil
}
