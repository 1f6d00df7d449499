// forgeloop plans a project with a human in the loop and then builds it with coding agents.
//
// Usage:
//
//	forgeloop plan  [flags] [description...]
//	forgeloop init  [flags]
//	forgeloop build [flags]
//	forgeloop run   [flags] [description...]
//	forgeloop mcp   [flags]
//	forgeloop render [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"forgeloop/pkg/agent"
	"forgeloop/pkg/approval"
	"forgeloop/pkg/config"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/mcpserver"
	"forgeloop/pkg/metrics"
	"forgeloop/pkg/persistence"
	"forgeloop/pkg/shell"
	"forgeloop/pkg/specrender"
	"forgeloop/pkg/tools"
	"forgeloop/pkg/version"
	"forgeloop/pkg/workflow"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Subcommands.
const (
	cmdPlan   = "plan"
	cmdInit   = "init"
	cmdBuild  = "build"
	cmdRun    = "run"
	cmdMCP    = "mcp"
	cmdRender = "render"
)

const descriptionPrompt = "Enter your project description:"

// options are the flags shared by every subcommand.
type options struct {
	configPath  string
	projectDir  string
	auto        bool
	debug       bool
	fromDB      bool
	description string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `forgeloop %s

Usage: forgeloop <command> [flags] [description...]

Commands:
  plan     converse with the planning agent and write the project specification
  init     bootstrap the project from the specification
  build    run one coding session per implementation task
  run      plan, init and build in one go
  mcp      serve the workspace tools over MCP stdio
  render   re-render the specification from the stored plan

Run "forgeloop <command> -h" for the flags of a command.
`, version.String())
}

// run parses args and executes one subcommand. It returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	command := args[0]
	switch command {
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return exitOK
	case "-version", "--version", "version":
		fmt.Fprintf(stdout, "forgeloop %s\n", version.String())
		return exitOK
	case cmdPlan, cmdInit, cmdBuild, cmdRun, cmdMCP, cmdRender:
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		usage(stderr)
		return exitUsage
	}

	opts, rest, err := parseFlags(command, args[1:], stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.description == "" {
		opts.description = strings.TrimSpace(strings.Join(rest, " "))
	}
	if opts.debug {
		logx.SetDebug(true)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitError
	}

	if err := execute(ctx, command, cfg, opts, stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "forgeloop %s failed: %v\n", command, err)
		return exitError
	}
	return exitOK
}

func parseFlags(command string, args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", config.DefaultPath("."), "Path to the config file (JSON or YAML)")
	fs.StringVar(&opts.projectDir, "project", "", "Project directory (overrides project.dir)")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	switch command {
	case cmdPlan, cmdRun:
		fs.BoolVar(&opts.auto, "auto", false, "Approve every request without asking")
		fs.StringVar(&opts.description, "description", "", "Project description (otherwise read from the arguments or asked)")
	case cmdRender:
		fs.BoolVar(&opts.fromDB, "from-db", false, "Render the latest plan stored in the database")
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs.Args(), nil
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.projectDir != "" {
		cfg.Project.Dir = opts.projectDir
	}
	return cfg, nil
}

// execute wires the stack for command and runs it next to the metrics endpoint.
func execute(ctx context.Context, command string, cfg *config.Config, opts *options, stdin io.Reader, stdout io.Writer) error {
	logger := logx.NewLogger("forgeloop")
	recorder := metrics.NewPrometheusRecorder()

	store, err := persistence.Open(cfg.Persistence.Enabled, cfg.Persistence.DBPath, logger.WithAgentID("persistence"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("%v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	stageCtx, stageDone := context.WithCancel(gctx)
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			return metrics.Serve(stageCtx, cfg.Metrics.ListenAddr, recorder.Registry(), logger.WithAgentID("metrics"))
		})
	}
	g.Go(func() error {
		defer stageDone()
		return dispatch(gctx, command, cfg, opts, store, recorder, stdin, stdout, logger)
	})
	err = g.Wait()

	if cfg.Metrics.Enabled && cfg.Metrics.Textfile != "" {
		if werr := metrics.WriteTextfile(cfg.Metrics.Textfile, recorder.Registry()); werr != nil {
			logger.Warn("Failed to write metrics textfile: %v", werr)
		}
	}
	return err
}

func dispatch(ctx context.Context, command string, cfg *config.Config, opts *options, store *persistence.Store,
	recorder *metrics.PrometheusRecorder, stdin io.Reader, stdout io.Writer, logger *logx.Logger) error {
	switch command {
	case cmdRender:
		return render(cfg, opts, store, stdout)
	case cmdMCP:
		return serveMCP(ctx, cfg, recorder, stdin, stdout, logger)
	}

	factory, err := agent.NewLLMClientFactory(cfg, recorder, logger.WithAgentID("llm"))
	if err != nil {
		return err
	}
	client, err := factory.CreateClient()
	if err != nil {
		return err
	}

	terminal := approval.NewTerminalSource(stdin, stdout, logger.WithAgentID("approval"))
	var source approval.DecisionSource = terminal
	if opts.auto {
		source = approval.NewAutoSource(logger.WithAgentID("approval"))
	}

	runner, err := workflow.New(workflow.Dependencies{
		Config:  cfg,
		Client:  client,
		Source:  source,
		Store:   store,
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		return err
	}

	switch command {
	case cmdPlan, cmdRun:
		description := opts.description
		if description == "" {
			if description, err = terminal.Prompt(ctx, descriptionPrompt); err != nil {
				return err
			}
		}
		if command == cmdRun {
			return runner.RunAll(ctx, description)
		}
		if _, err := runner.Plan(ctx, description); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Project specification written to %s\n", cfg.SpecPath())
		return nil
	case cmdInit:
		summary, err := runner.Init(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, summary)
		return nil
	default:
		summaries, err := runner.Build(ctx)
		for i, s := range summaries {
			fmt.Fprintf(stdout, "%d. %s\n", i+1, s)
		}
		return err
	}
}

func render(cfg *config.Config, opts *options, store *persistence.Store, stdout io.Writer) error {
	if opts.fromDB {
		p, err := store.LatestPlan()
		if err != nil {
			return err
		}
		if err := specrender.WriteFile(cfg.SpecPath(), p); err != nil {
			return err
		}
	} else if _, err := workflow.Render(cfg.PlanJSONPath(), cfg.SpecPath()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Project specification written to %s\n", cfg.SpecPath())
	return nil
}

func serveMCP(ctx context.Context, cfg *config.Config, recorder *metrics.PrometheusRecorder, stdin io.Reader, stdout io.Writer, logger *logx.Logger) error {
	if err := os.MkdirAll(cfg.Project.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	sess, err := shell.Start(shell.Options{
		Shell:          cfg.Session.Shell,
		Dir:            cfg.Project.Dir,
		DefaultTimeout: cfg.CommandTimeout(),
		Logger:         logger.WithAgentID("shell"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	ws := tools.NewWorkspace(cfg.Project.Dir, sess, cfg.CommandTimeout()).WithTimeoutObserver(recorder)
	server, err := mcpserver.New(ws, nil, version.Version, recorder, logger.WithAgentID("mcp"))
	if err != nil {
		return err
	}
	return server.Serve(ctx, stdin, stdout)
}
