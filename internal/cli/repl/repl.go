// Package repl runs grading commands interactively or one line at a time.
package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"autograde/internal/cli/command"
	"autograde/internal/cli/config"
	httpclient "autograde/internal/cli/http"
	"autograde/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "autograde> "

// errExit ends Run without an error.
var errExit = errors.New("exit")

// Session holds the client, the current token and the output settings.
type Session struct {
	client      *httpclient.Client
	commands    map[string]command.Command
	store       *state.Store
	token       string
	historyPath string
	pretty      bool
	raw         bool
	rl          *readline.Instance
	out         io.Writer
}

// New creates a session from cfg. A token override in cfg wins over the saved one.
func New(cfg config.Config, commands map[string]command.Command, store *state.Store, out io.Writer) (*Session, error) {
	s := &Session{
		commands:    commands,
		store:       store,
		historyPath: cfg.Session.HistoryPath,
		pretty:      cfg.PrettyJSON(),
		raw:         cfg.Output.Raw,
		out:         out,
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	saved, err := store.Load()
	if err != nil {
		return nil, err
	}
	s.token = saved.AccessToken
	if cfg.Session.Token != "" {
		s.token = cfg.Session.Token
	}
	s.client = httpclient.New(cfg.Server.BaseURL, cfg.Server.Timeout, func() string { return s.token })
	return s, nil
}

// Run reads commands until exit, EOF or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     s.historyPath,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()
	defer func() { s.rl = nil }()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input failed: %w", err)
		}
		err = s.Execute(ctx, line)
		if errors.Is(err, errExit) {
			s.printf("bye")
			return nil
		}
		if err != nil {
			s.printf("error: %v", err)
		}
	}
	return nil
}

// Execute runs one line. API failures are returned as coded errors after the
// response has been printed.
func (s *Session) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "exit", "quit":
		return errExit
	case "help":
		s.printHelp()
		return nil
	case "set":
		return s.set(fields[1:])
	case "show":
		return s.show(fields[1:])
	}
	return s.runCommand(ctx, line)
}

func (s *Session) completer() *readline.PrefixCompleter {
	groups := map[string][]readline.PrefixCompleterInterface{}
	var order []string
	for _, name := range command.Names(s.commands) {
		cmd := s.commands[name]
		if _, ok := groups[cmd.Group]; !ok {
			order = append(order, cmd.Group)
		}
		groups[cmd.Group] = append(groups[cmd.Group], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
	}
	for _, group := range order {
		items = append(items, readline.PcItem(group, groups[group]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) set(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: set base <url> | timeout <duration> | token [value]")
	}
	switch args[0] {
	case "base":
		if len(args) < 2 {
			return fmt.Errorf("usage: set base http://127.0.0.1:8090")
		}
		s.client.SetBaseURL(args[1])
		s.printf("base set to %s", s.client.BaseURL())
	case "timeout":
		if len(args) < 2 {
			return fmt.Errorf("usage: set timeout 30s")
		}
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration %q", args[1])
		}
		s.client.SetTimeout(d)
		s.printf("timeout set to %s", d)
	case "token":
		if len(args) < 2 {
			s.token = ""
			if err := s.store.Clear(); err != nil {
				return err
			}
			s.printf("token cleared")
			return nil
		}
		if _, err := s.store.Save(args[1]); err != nil {
			return err
		}
		s.token = args[1]
		s.printf("token saved to %s", s.store.Path())
	default:
		return fmt.Errorf("unknown setting %q", args[0])
	}
	return nil
}

func (s *Session) show(args []string) error {
	what := ""
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "token":
		if s.token == "" {
			s.printf("token: <empty>")
			return nil
		}
		s.printf("token: %s", mask(s.token))
		info, err := state.Inspect(s.token)
		if err != nil {
			s.printf("claims: unreadable (%v)", err)
			return nil
		}
		s.printf("subject: %s  role: %s", info.Subject, info.Role)
		if !info.ExpiresAt.IsZero() {
			note := ""
			if info.Expired(time.Now()) {
				note = " (expired)"
			}
			s.printf("expires: %s%s", info.ExpiresAt.Local().Format(time.RFC3339), note)
		}
	case "config":
		s.printf("base: %s", s.client.BaseURL())
		s.printf("statePath: %s", s.store.Path())
		s.printf("historyPath: %s", s.historyPath)
		s.printf("pretty: %t  raw: %t", s.pretty, s.raw)
	default:
		return fmt.Errorf("usage: show token|config")
	}
	return nil
}

func (s *Session) runCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("unknown command %q, try help", line)
	}
	name := tokens[0] + " " + tokens[1]
	cmd, ok := s.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}
	params, err := parseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.fillMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return err
	}
	return s.render(resp)
}

func parseParams(tokens []string) (command.Params, error) {
	params := command.Params{}
	for _, token := range tokens {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", token)
		}
		params.Set(key, value)
	}
	return params, nil
}

// fillMissing prompts for required fields. Without a terminal it reports them instead.
func (s *Session) fillMissing(cmd command.Command, params command.Params) error {
	missing := command.Missing(cmd, params)
	if len(missing) == 0 {
		return nil
	}
	if s.rl == nil {
		names := make([]string, 0, len(missing))
		for _, field := range missing {
			names = append(names, describe(field))
		}
		return fmt.Errorf("missing %s", strings.Join(names, ", "))
	}
	for _, field := range missing {
		s.rl.SetPrompt(describe(field) + ": ")
		value, err := s.rl.Readline()
		s.rl.SetPrompt(prompt)
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func describe(field command.Field) string {
	if field.FromFile != "" {
		return fmt.Sprintf("%s (or %s=path)", field.Name, field.FromFile)
	}
	return field.Name
}

func (s *Session) render(resp httpclient.Response) error {
	apiErr := resp.Err()
	header := fmt.Sprintf("HTTP %d in %s", resp.StatusCode, resp.Duration.Round(time.Millisecond))
	if resp.Envelope != nil && resp.Envelope.TraceID != "" {
		header += " trace=" + resp.Envelope.TraceID
	}
	s.printf("%s", header)

	switch {
	case s.raw || resp.Envelope == nil:
		if len(resp.Raw) > 0 {
			s.printf("%s", resp.Raw)
		}
	case apiErr != nil:
		if len(resp.Envelope.Details) > 0 && string(resp.Envelope.Details) != "null" {
			s.printf("details: %s", s.formatJSON(resp.Envelope.Details))
		}
	case len(resp.Envelope.Data) > 0:
		s.printf("%s", s.formatJSON(resp.Envelope.Data))
	}
	return apiErr
}

func (s *Session) formatJSON(data json.RawMessage) string {
	if !s.pretty {
		return string(data)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

func (s *Session) printHelp() {
	s.printf("usage: <group> <action> key=value ...")
	for _, name := range command.Names(s.commands) {
		s.printf("  %s", s.commands[name].Usage)
	}
	s.printf("system: help | exit | set base|timeout|token | show token|config")
}

func (s *Session) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func mask(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "..." + token[len(token)-4:]
}
