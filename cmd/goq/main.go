package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"goq/internal/app"
	"goq/internal/approval"
	"goq/internal/config"
	"goq/internal/logging"
)

var (
	version = "0.1.0"

	flagRecover   bool
	flagAll       bool
	flagExitAfter bool
	flagModelCmd  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "goq [question...]",
		Short: "Terminal assistant with human-approved operations",
		Long: `goq is an interactive terminal assistant. Every side-effecting
operation the model proposes (shell, read, write, fetch, tool call) passes a
security policy and a human approval prompt before it runs.`,
		Args: cobra.ArbitraryArgs,
		RunE: runApp,
	}

	rootCmd.Flags().BoolVarP(&flagRecover, "recover", "r", false, "offer to restore the previous session")
	rootCmd.Flags().BoolVar(&flagAll, "all", false, "approve all operations for this run without prompting")
	rootCmd.Flags().BoolVarP(&flagExitAfter, "exit-after-answer", "e", false, "answer the initial question and exit")
	rootCmd.Flags().StringVar(&flagModelCmd, "model-cmd", "", "model backend command (default $GOQ_MODEL_CMD)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goq version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Logging.Enabled {
		if err := os.MkdirAll(config.Dir(), 0o755); err == nil {
			err = logging.EnableFileLogging(config.Dir(), logging.ParseLevel(cfg.Logging.Level))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file: %v\n", err)
		}
		defer logging.Close()
	}

	modelCmd := flagModelCmd
	if modelCmd == "" {
		modelCmd = os.Getenv("GOQ_MODEL_CMD")
	}
	if modelCmd == "" {
		return fmt.Errorf("no model backend configured: set --model-cmd or GOQ_MODEL_CMD")
	}
	modelFields := strings.Fields(modelCmd)
	model := &app.CommandModel{Command: modelFields[0], Args: modelFields[1:]}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	prompter := approval.NewTerminalPrompter(os.Stdin, os.Stdout)
	application, err := app.New(cfg, config.Dir(), workDir, model, prompter, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	opts := app.Options{
		Recover:         flagRecover,
		ApproveAll:      flagAll,
		ExitAfterAnswer: flagExitAfter,
		InitialQuestion: strings.Join(args, " "),
	}
	return application.Run(cmd.Context(), opts)
}
