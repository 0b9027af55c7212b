package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roelfdiedericks/mcprompt/internal/config"
	"github.com/roelfdiedericks/mcprompt/internal/llm"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/metrics"
	"github.com/roelfdiedericks/mcprompt/internal/orchestrator"
	"github.com/roelfdiedericks/mcprompt/internal/provider"
	"github.com/roelfdiedericks/mcprompt/internal/render"
)

const version = "0.1.0"

// CLI is the command line.
type CLI struct {
	Prompt []string `arg:"" optional:"" help:"Prompt to send to the model. Words are joined with spaces."`

	Config     string        `short:"c" help:"Config file (.json, .yaml, .yml or .toml)." type:"path"`
	Model      string        `short:"m" help:"Model name."`
	MaxTokens  int           `help:"Output token limit per request."`
	Server     string        `short:"s" help:"MCP server command."`
	ServerArg  []string      `name:"server-arg" help:"Argument for the server command (repeatable)."`
	Policy     string        `help:"Tool use policy: first or sequential."`
	Timeout    time.Duration `help:"Abort the run after this long (e.g. 2m)."`
	LogLevel   string        `help:"Log level: trace, debug, info, warn or error."`
	Stats      bool          `help:"Print timings and counters after the run."`
	Plain      bool          `short:"p" help:"Print only the answer."`
	SaveConfig string        `name:"save-config" help:"Write the effective configuration (without the API key) to this file and exit." type:"path"`

	Version kong.VersionFlag `short:"v" help:"Print version and exit."`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process exit, returning the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("mcprompt"),
		kong.Description("Answer a prompt with Claude, using tools from an MCP server."),
		kong.Vars{"version": "mcprompt " + version},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "mcprompt: %v\n", err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help or --version
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "mcprompt: error: %v\n", err)
		return 1
	}

	prompt := strings.Join(cli.Prompt, " ")
	if strings.TrimSpace(prompt) == "" && cli.SaveConfig == "" {
		fmt.Fprintln(stderr, `Usage: mcprompt "Your prompt here"`)
		parser.Stdout = stderr
		_ = kctx.PrintUsage(true)
		return 1
	}

	// config loading logs too, so start at the level the flag or environment asks for
	Init(&Config{Level: startupLevel(cli.LogLevel), Output: stderr})

	cfg, path, err := config.Load(config.LoadOptions{Path: cli.Config})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cli.apply(cfg)

	level, err := ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	SetLevel(level)
	if path != "" {
		L_debug("using config file", "path", path)
	}

	if cli.SaveConfig != "" {
		if err := config.Save(cli.SaveConfig, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stderr, "Configuration saved to %s\n", cli.SaveConfig)
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := cli.runTimeout(cfg); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	printer := render.New(stdout, stderr, cli.Plain)
	var rec *metrics.Recorder
	if cli.Stats {
		rec = metrics.NewRecorder()
	}

	code := execute(ctx, cfg, prompt, printer, rec, level >= LevelDebug, stderr)
	if cli.Stats {
		printer.Stats(rec.Snapshot())
	}
	return code
}

// startupLevel is the log level used before the config is loaded.
func startupLevel(flag string) int {
	name := flag
	if name == "" {
		name = os.Getenv(config.EnvLogLevel)
	}
	if name == "" {
		return LevelWarn
	}
	level, err := ParseLevel(name)
	if err != nil {
		return LevelWarn
	}
	return level
}

// apply overlays command-line flags onto cfg.
func (cli *CLI) apply(cfg *config.Config) {
	if cli.Model != "" {
		cfg.LLM.Model = cli.Model
	}
	if cli.MaxTokens != 0 {
		cfg.LLM.MaxTokens = cli.MaxTokens
	}
	if cli.Server != "" {
		cfg.Server.Command = cli.Server
		cfg.Server.Args = cli.ServerArg
	} else if len(cli.ServerArg) > 0 {
		cfg.Server.Args = cli.ServerArg
	}
	if cli.Policy != "" {
		cfg.Orchestrator.ToolUsePolicy = cli.Policy
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
}

func (cli *CLI) runTimeout(cfg *config.Config) time.Duration {
	if cli.Timeout > 0 {
		return cli.Timeout
	}
	return time.Duration(cfg.Orchestrator.RunTimeoutSeconds) * time.Second
}

// execute wires the collaborators and performs one run.
func execute(ctx context.Context, cfg *config.Config, prompt string, printer *render.Printer, rec *metrics.Recorder, verbose bool, stderr io.Writer) int {
	model, err := llm.NewAnthropicProvider("anthropic", llm.ProviderConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		ContextTokens:  cfg.LLM.ContextTokens,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	if err != nil {
		printer.Error(err.Error())
		return 1
	}

	server := provider.ServerConfig{
		Command: cfg.Server.Command,
		Args:    cfg.Server.Args,
		Env:     cfg.Server.Env,
		Dir:     cfg.Server.Dir,
	}
	if verbose {
		server.Stderr = stderr
	}
	client := &provider.Client{
		Name:    "mcprompt",
		Version: version,
		Label:   cfg.Server.Command,
		Transport: func() (mcp.Transport, error) {
			return provider.NewCommandTransport(server)
		},
	}
	connector := orchestrator.ConnectFunc(func(ctx context.Context) (orchestrator.ToolSession, error) {
		session, err := client.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	})

	policy, err := orchestrator.ParsePolicy(cfg.Orchestrator.ToolUsePolicy)
	if err != nil {
		printer.Error(err.Error())
		return 1
	}
	orch := orchestrator.New(connector, model, orchestrator.Options{
		ToolUsePolicy: policy,
		MaxToolCalls:  cfg.Orchestrator.MaxToolCalls,
		Observer:      printer,
		Metrics:       rec,
	})

	res, err := orch.Run(ctx, prompt)
	if err != nil {
		L_debug("run failed", "error", err)
		printer.Error(errorMessage(err))
		return 1
	}
	printer.Answer(res.Answer)
	return 0
}

// errorMessage turns a run error into one line for the console.
func errorMessage(err error) string {
	var ue *llm.UpstreamError
	if errors.As(err, &ue) {
		return llm.UserMessage(ue)
	}
	var re *orchestrator.RunError
	if errors.As(err, &re) {
		return re.Err.Error()
	}
	return err.Error()
}
