// Command wdlx analyzes and evaluates WDL documents.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/funvibe/wdlx/internal/config"
	"github.com/funvibe/wdlx/internal/journal"
	"github.com/funvibe/wdlx/pkg/cli"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wdlx",
		Short:         "Analyze and evaluate WDL documents",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "engine configuration file (YAML)")

	loadConfig := func() (*config.Config, error) {
		if configPath == "" {
			return config.Default(), nil
		}
		return config.Load(configPath)
	}

	var denyWarnings, denyNotes bool
	check := &cobra.Command{
		Use:   "check <document>",
		Short: "Analyze a document and report diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Check(args[0], denyWarnings, denyNotes)
		},
	}
	check.Flags().BoolVar(&denyWarnings, "deny-warnings", false, "treat warnings as failures")
	check.Flags().BoolVar(&denyNotes, "deny-notes", false, "treat notes as failures")

	var target, inputsPath, outputDir string
	var runDenyWarnings, runDenyNotes, verbose bool
	run := &cobra.Command{
		Use:   "run <document>",
		Short: "Evaluate a task or workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			logger := zap.NewNop()
			if verbose {
				logger, err = zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer logger.Sync()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cli.Run(ctx, args[0], cli.RunOptions{
				Target:       target,
				InputsPath:   inputsPath,
				DenyWarnings: runDenyWarnings,
				DenyNotes:    runDenyNotes,
				Config:       cfg,
				Logger:       logger,
			})
		},
	}
	run.Flags().StringVarP(&target, "task", "t", "", "run the named task instead of the workflow")
	run.Flags().StringVarP(&inputsPath, "inputs", "i", "", "JSON file of input values")
	run.Flags().StringVarP(&outputDir, "output", "o", "", "run output directory")
	run.Flags().BoolVar(&runDenyWarnings, "deny-warnings", false, "treat warnings as failures")
	run.Flags().BoolVar(&runDenyNotes, "deny-notes", false, "treat notes as failures")
	run.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recorded task runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("no journal is configured; set `journal_path` in the configuration")
			}
			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Runs()
			if err != nil {
				return err
			}
			for _, r := range entries {
				code := "-"
				if r.ExitCode.Valid {
					code = fmt.Sprintf("%d", r.ExitCode.Int64)
				}
				fmt.Printf("%s\t%s\tattempt=%d\t%s\texit=%s\n", r.Id, r.Name, r.Attempt, r.Status, code)
			}
			return nil
		},
	}

	root.AddCommand(check, run, runs)
	return root
}
