package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/m4xw311/superagent/agent"
	"github.com/m4xw311/superagent/agent/terminal"
	"github.com/m4xw311/superagent/browser"
	"github.com/m4xw311/superagent/config"
	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/history"
	"github.com/m4xw311/superagent/llm"
	"github.com/m4xw311/superagent/logging"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/prompt"
	"github.com/m4xw311/superagent/session"
	"github.com/m4xw311/superagent/tools"
	"github.com/m4xw311/superagent/tracing"
	"github.com/spf13/cobra"
)

// llmRetryBackoff is multiplied by the attempt number between LLM retries.
const llmRetryBackoff = 2 * time.Second

type runOptions struct {
	configPath    string
	dir           string
	mode          string
	toolset       string
	maxIterations int
	transcript    string
	logLevel      string
	verbosity     string
	llm           string
	model         string
}

func newRunCmd(exitCode *int) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] TASK...",
		Short: "Run the agent until the task is completed, fails or is aborted",
		Long: `Run the agent on a task in a working directory.

Exit codes: 0 completed, 1 failed, 2 aborted.

Examples:
  superagent run "add a README describing the build"
  superagent run --dir ./service --mode prompt "fix the failing tests"
  superagent run --toolset readonly --transcript run.json "summarize the code"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := runTask(ctx, opts, strings.Join(args, " "), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			*exitCode = code
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (default: ~/.superagent/config.yaml then ./.superagent/config.yaml)")
	f.StringVarP(&opts.dir, "dir", "d", "", "working directory (default: current directory)")
	f.StringVarP(&opts.mode, "mode", "m", "", "execution mode: 'auto' or 'prompt'")
	f.StringVarP(&opts.toolset, "toolset", "t", "", "toolset to use (defaults to 'default')")
	f.IntVar(&opts.maxIterations, "max-iterations", 0, "maximum number of turns")
	f.StringVar(&opts.transcript, "transcript", "", "write the context log as JSON to this file when the run ends")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&opts.verbosity, "tool-verbosity", "info", "tool verbosity level: 'none', 'info', or 'all'")
	f.StringVar(&opts.llm, "llm", "", "LLM provider: anthropic, openai, gemini, bedrock or scripted")
	f.StringVar(&opts.model, "model", "", "model id")

	return cmd
}

// loadConfig layers CLI flags over the configuration files.
func loadConfig(opts runOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.maxIterations != 0 {
		cfg.Agent.MaxIterations = opts.maxIterations
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.llm != "" {
		cfg.LLMClient = opts.llm
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration")
	}
	return cfg, nil
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve %s", dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.Wrapf(err, "working directory")
	}
	if !info.IsDir() {
		return "", errors.New("%s is not a directory", abs)
	}
	return abs, nil
}

func newFetcher(cfg config.BrowserConfig, logger *slog.Logger) browser.Fetcher {
	if cfg.Backend == "mcp" {
		return browser.NewMCPFetcher(cfg.MCP.Command, cfg.MCP.Args, cfg.MCP.Tool, logger)
	}
	return browser.NewRodFetcher(cfg.Headless, logger)
}

// runTask wires every component for one run and returns the exit code.
// Startup errors are returned as errors and map to exit code 1.
func runTask(ctx context.Context, opts runOptions, task string, stdout io.Writer) (int, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return 1, err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return 1, err
	}
	defer closeLog()
	slog.SetDefault(logger)

	shutdown, err := tracing.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return 1, err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	dir, err := resolveDir(opts.dir)
	if err != nil {
		return 1, err
	}
	verbosity, err := terminal.ParseVerbosity(opts.verbosity)
	if err != nil {
		return 1, err
	}
	toolset, err := cfg.GetToolset(opts.toolset)
	if err != nil {
		return 1, err
	}
	if opts.toolset != "" && toolset.Name != opts.toolset {
		logger.Warn("toolset not found, using default", "toolset", opts.toolset)
	}

	client, err := llm.NewClient(ctx, cfg.LLMClient, llm.Options{Model: cfg.Model, MaxTokens: cfg.MaxTokens})
	if err != nil {
		return 1, errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	term := terminal.New(stdout, verbosity, cancel)

	shellTimeout := time.Duration(cfg.Shell.TimeoutSeconds) * time.Second
	sess := session.New(session.Options{
		Shell:          cfg.Shell.Path,
		Dir:            dir,
		Env:            cfg.Shell.Env,
		Timeout:        shellTimeout,
		MaxOutputBytes: cfg.Shell.MaxOutputBytes,
		Logger:         logger,
	})

	web := browser.New(newFetcher(cfg.Browser, logger), browser.Options{
		SearchURL: cfg.Browser.SearchURL,
		MaxChars:  cfg.Browser.MaxChars,
		Logger:    logger,
	})
	defer func() {
		if err := web.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}()

	registry, err := tools.NewToolRegistry(toolset, tools.Deps{
		WorkDir:           dir,
		Access:            cfg.FilesystemAccess,
		AllowedCommands:   cfg.AllowedCommands,
		Mode:              cfg.Mode,
		Shell:             sess,
		ShellTimeout:      shellTimeout,
		Browser:           web,
		Input:             term,
		ConfirmCompletion: cfg.Agent.ConfirmCompletion,
	}, logger)
	if err != nil {
		sess.Close()
		return 1, err
	}

	builder, err := prompt.New(dir, filepath.Base(cfg.Shell.Path), registry.Tools())
	if err != nil {
		sess.Close()
		return 1, err
	}

	a, err := agent.New(agent.Config{
		Client:   client,
		Parser:   parser.New(tools.BuiltinShapes()...),
		Registry: registry,
		Prompt:   builder,
		History:  history.New(history.NewEstimator(cfg.Context.Tokenizer, logger)),
		Session:  sess,
		Options: agent.Options{
			MaxIterations:     cfg.Agent.MaxIterations,
			MaxParseRetries:   cfg.Agent.MaxParseRetries,
			TokenBudget:       cfg.Context.TokenBudget,
			LLMRetries:        cfg.LLMRetries,
			RetryBackoff:      llmRetryBackoff,
			RequestsPerMinute: cfg.RequestsPerMinute,
		},
		Callbacks: term.Callbacks(),
		Logger:    logger,
	})
	if err != nil {
		sess.Close()
		return 1, err
	}

	logger.Info("starting run", "dir", dir, "llm", cfg.LLMClient, "model", cfg.Model, "mode", cfg.Mode, "toolset", toolset.Name)
	out := a.Run(ctx, task)
	term.PrintOutcome(out)

	if opts.transcript != "" {
		if err := a.History().WriteTranscript(opts.transcript); err != nil {
			logger.Error("failed to write transcript", "error", err)
		}
	}
	return out.ExitCode(), nil
}
