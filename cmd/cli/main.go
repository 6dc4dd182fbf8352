package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autograde/internal/cli/command"
	"autograde/internal/cli/config"
	"autograde/internal/cli/repl"
	"autograde/internal/cli/state"
	appErr "autograde/pkg/errors"
)

func main() {
	configPath := flag.String("config", "configs/cli.yaml", "Path to the CLI config file")
	envFile := flag.String("env", ".env", "Optional env file applied before the config")
	baseURL := flag.String("base", "", "Grading API base URL")
	timeout := flag.Duration("timeout", 0, "HTTP timeout (e.g. 30s)")
	token := flag.String("token", "", "Bearer token for this run only")
	statePath := flag.String("state", "", "Token state file")
	raw := flag.Bool("raw", false, "Print response bodies as received")
	exec := flag.String("exec", "", "Run one command and exit, e.g. -exec 'grading result id=s-1'")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(2)
	}
	if *baseURL != "" {
		cfg.Server.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Server.Timeout = *timeout
	}
	if *token != "" {
		cfg.Session.Token = *token
	}
	if *statePath != "" {
		cfg.Session.StatePath = *statePath
	}
	if *raw {
		cfg.Output.Raw = true
	}

	session, err := repl.New(cfg, command.Registry(), state.NewStore(cfg.Session.StatePath), os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start session failed: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *exec != "" {
		if err := session.Execute(ctx, *exec); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			stop()
			os.Exit(exitCode(err))
		}
		return
	}
	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		stop()
		os.Exit(1)
	}
}

// exitCode separates API rejections (1) from local and transport failures (2).
func exitCode(err error) int {
	var coded *appErr.Error
	if errors.As(err, &coded) {
		return 1
	}
	return 2
}
