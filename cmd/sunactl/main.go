package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"suna-client/internal/client"
	"suna-client/internal/report"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	configPath      string
	modelName       string
	reasoningEffort string
	enableThinking  bool
	streamTimeout   time.Duration
)

func newClient(ctx context.Context) (*client.Client, error) {
	cfg, err := client.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := client.NewLogger(os.Stderr)
	return client.New(ctx, cfg, logger)
}

func modelOptions() client.ModelOptions {
	opts := client.DefaultModelOptions()
	if modelName != "" {
		opts.ModelName = modelName
	}
	if reasoningEffort != "" {
		opts.ReasoningEffort = reasoningEffort
	}
	opts.EnableThinking = enableThinking
	return opts
}

// run executes one workflow operation and renders its report. A hard
// failure surfaces as a non-zero exit; partial success does not.
func run(ctx context.Context, op func(context.Context, *client.Client) (*client.WorkflowResult, error)) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	result, err := op(ctx, c)
	if result != nil {
		report.Render(os.Stdout, result)
	}
	if err != nil {
		return err
	}
	if result != nil && result.Outcome == client.OutcomeFailure {
		return errors.New(result.Err)
	}
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	root := &cobra.Command{
		Use:     "sunactl",
		Short:   "Remote-control client for the Suna agent execution backend",
		Long:    "sunactl submits prompts to a hosted agent execution backend, follows the live event stream, and retrieves generated files and embedded JSON artifacts from the run's sandbox.",
		Version: version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a credentials file (JSON or YAML); environment variables are used otherwise")

	initiateCmd := &cobra.Command{
		Use:   "initiate <prompt>",
		Short: "Start an agent run and print the resolved identifiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, func(ctx context.Context, c *client.Client) (*client.WorkflowResult, error) {
				return c.InitiateOnly(ctx, args[0], modelOptions())
			})
		},
	}
	initiateCmd.Flags().StringVar(&modelName, "model", "", "Model name to request")
	initiateCmd.Flags().StringVar(&reasoningEffort, "reasoning-effort", "", "Reasoning effort (low|medium|high)")
	initiateCmd.Flags().BoolVar(&enableThinking, "thinking", false, "Enable extended thinking")

	pollCmd := &cobra.Command{
		Use:   "poll <agent_run_id>",
		Short: "Check a run's status and download generated files when it has completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, func(ctx context.Context, c *client.Client) (*client.WorkflowResult, error) {
				return c.PollAndDownload(ctx, args[0])
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <agent_run_id>",
		Short: "Stop an agent run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, func(ctx context.Context, c *client.Client) (*client.WorkflowResult, error) {
				return c.StopAndCleanup(ctx, args[0])
			})
		},
	}

	stopSandboxCmd := &cobra.Command{
		Use:   "stop-sandbox <agent_run_id>",
		Short: "Stop an agent run and delete its sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, func(ctx context.Context, c *client.Client) (*client.WorkflowResult, error) {
				return c.StopAndDeleteSandbox(ctx, args[0])
			})
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Execute the full synchronous workflow: initiate, stream, download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, func(ctx context.Context, c *client.Client) (*client.WorkflowResult, error) {
				return c.ExecutePrompt(ctx, args[0], modelOptions(), streamTimeout)
			})
		},
	}
	runCmd.Flags().StringVar(&modelName, "model", "", "Model name to request")
	runCmd.Flags().StringVar(&reasoningEffort, "reasoning-effort", "", "Reasoning effort (low|medium|high)")
	runCmd.Flags().BoolVar(&enableThinking, "thinking", false, "Enable extended thinking")
	runCmd.Flags().DurationVar(&streamTimeout, "timeout", client.DefaultStreamTimeout, "Maximum wait between stream events")

	root.AddCommand(initiateCmd, pollCmd, stopCmd, stopSandboxCmd, runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
