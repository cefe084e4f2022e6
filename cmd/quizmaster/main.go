package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"QuizMaster/internal/backend"
	"QuizMaster/internal/chatbot"
	"QuizMaster/internal/config"
	"QuizMaster/internal/notify"
	"QuizMaster/internal/session"
	"QuizMaster/internal/telemetry"
	"QuizMaster/internal/tools"
	"QuizMaster/internal/web"
)

type flags struct {
	configFile string
	envFile    string
	cli        bool
	overrides  config.Config
}

func parseFlags() flags {
	var f flags
	o := &f.overrides

	flag.StringVar(&f.configFile, "config", "", "Path to a TOML config file")
	flag.StringVar(&f.envFile, "env-file", ".env", "Path to the .env file with credentials")
	flag.BoolVar(&f.cli, "cli", false, "Run the quiz in the terminal instead of serving the web widget")

	flag.StringVar(&o.Backend, "backend", "", "LLM backend (gemini|openai|grok|ollama)")
	flag.StringVar(&o.Model, "model", "", "Model name (defaults to the backend preset)")
	flag.StringVar(&o.BaseURL, "base-url", "", "OpenAI-compatible endpoint (defaults to the backend preset)")
	flag.StringVar(&o.ListenAddr, "addr", "", "Listen address for the web widget")
	flag.IntVar(&o.MaxToolIterations, "max-tool-iterations", 0, "Model requests allowed per turn")
	flag.StringVar(&o.SystemPromptFile, "system-prompt", "", "File replacing the built-in system prompt")
	flag.StringVar(&o.LogDir, "log-dir", "", "Directory for logs, traces and metrics")
	flag.StringVar(&o.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flag.BoolVar(&o.Debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return f
}

// apply copies only the flags given on the command line onto cfg.
func (f flags) apply(cfg *config.Config) {
	o := f.overrides
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "backend":
			cfg.Backend = o.Backend
		case "model":
			cfg.Model = o.Model
		case "base-url":
			cfg.BaseURL = o.BaseURL
		case "addr":
			cfg.ListenAddr = o.ListenAddr
		case "max-tool-iterations":
			cfg.MaxToolIterations = o.MaxToolIterations
		case "system-prompt":
			cfg.SystemPromptFile = o.SystemPromptFile
		case "log-dir":
			cfg.LogDir = o.LogDir
		case "log-level":
			cfg.LogLevel = o.LogLevel
		case "debug":
			cfg.Debug = o.Debug
		}
	})
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(f.configFile, f.envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	f.apply(&cfg)
	if err := config.Resolve(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f.cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, cli bool) error {
	level := telemetry.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	tel, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdown()

	logger.Info("starting quizmaster",
		"backend", cfg.Backend,
		"model", cfg.Model,
		"base_url", cfg.BaseURL,
		"max_tool_iterations", cfg.MaxToolIterations,
	)

	notifier, err := notify.NewPushover(cfg.PushoverURL, cfg.PushoverToken, cfg.PushoverUser, logger, tel)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	recorder, err := tools.NewRecorder(notifier, logger)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	registry, err := tools.NewRegistry(tools.Declarations(), recorder.Handlers())
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	prompt, err := chatbot.LoadSystemPrompt(cfg.SystemPromptFile)
	if err != nil {
		return err
	}

	bot, err := chatbot.New(backend.NewClient(cfg), registry, chatbot.Options{
		Model:         cfg.Model,
		SystemPrompt:  prompt,
		MaxIterations: cfg.MaxToolIterations,
		Logger:        logger,
		Telemetry:     tel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}

	if cli {
		return bot.RunREPL(ctx, os.Stdin, os.Stdout, session.New(cfg.Backend))
	}

	server, err := web.NewServer(bot, cfg.Backend, logger)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}
	fmt.Printf("Quizmaster listening on %s\n", cfg.ListenAddr)
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}
