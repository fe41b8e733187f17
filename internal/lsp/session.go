package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvp-joe/leantrace/internal/trace"
)

// Config holds everything needed to start and drive one session. Method
// names are server-specific configuration, not hard-coded protocol.
type Config struct {
	// Binary is the resolved path to the server-launching binary (lake).
	Binary string
	// Args are the arguments that start the server (default: "serve").
	Args []string
	// RootDir is the project root, sent as the workspace rootUri.
	RootDir string

	// GoalMethod is the goal-state query ($/lean/plainGoal).
	GoalMethod string
	// WaitMethod is the readiness request issued after didOpen
	// (textDocument/waitForDiagnostics).
	WaitMethod string

	// StartupTimeout bounds spawn + handshake + readiness.
	StartupTimeout time.Duration
	// RequestTimeout bounds each goal query.
	RequestTimeout time.Duration
	// ReadyRetries bounds NotReady retries per query before the failure is
	// surfaced as fatal for the file.
	ReadyRetries int
	// ReadyBackoff is the initial retry delay; it doubles per attempt.
	ReadyBackoff time.Duration

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if len(c.Args) == 0 {
		c.Args = []string{"serve"}
	}
	if c.GoalMethod == "" {
		c.GoalMethod = "$/lean/plainGoal"
	}
	if c.WaitMethod == "" {
		c.WaitMethod = "textDocument/waitForDiagnostics"
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.ReadyRetries == 0 {
		c.ReadyRetries = 4
	}
	if c.ReadyBackoff == 0 {
		c.ReadyBackoff = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// ResolveServer resolves the server binary path: an explicit path wins, then
// PATH lookup, then the standard elan install location.
func ResolveServer(explicit, name string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, explicit, err)
		}
		return explicit, nil
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err == nil {
		fallback := filepath.Join(home, ".elan", "bin", name)
		if _, err := os.Stat(fallback); err == nil {
			return fallback, nil
		}
	}
	return "", fmt.Errorf("%w: %q not on PATH and no elan install found", ErrBinaryNotFound, name)
}

// Session owns one server process for one source file. All requests against
// it are strictly sequential; a session is never shared between workers. On
// an unexpected process exit the session restarts once, replays the document
// open, and re-issues the failed query; a second failure is fatal for the
// file only.
type Session struct {
	cfg      Config
	filePath string
	uri      string
	text     string
	version  int

	cmd    *exec.Cmd
	client *Client

	serverVersion string
	restarted     bool

	closeOnce sync.Once
	closeErr  error
}

// Open spawns a server, completes the handshake, opens filePath, and waits
// for the server's readiness signal. Failures wrap ErrSessionStart (or
// ErrBinaryNotFound when the binary is missing).
func Open(ctx context.Context, cfg Config, filePath string) (*Session, error) {
	cfg = cfg.withDefaults()
	text, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSessionStart, filePath, err)
	}
	s := &Session{
		cfg:      cfg,
		filePath: filePath,
		uri:      PathToURI(filePath),
		text:     string(text),
	}
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// start spawns the process and performs handshake + document open +
// readiness wait. Used by Open and by the one-shot restart path.
func (s *Session) start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...)
	cmd.Dir = s.cfg.RootDir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	if err := cmd.Start(); err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return fmt.Errorf("%w: %s", ErrBinaryNotFound, s.cfg.Binary)
		}
		return fmt.Errorf("%w: spawn %s: %v", ErrSessionStart, s.cfg.Binary, err)
	}
	s.cmd = cmd
	s.client = NewClient(stdin, stdout, s.cfg.Logger)

	initResult, err := s.client.Request(ctx, "initialize", map[string]any{
		"processId":    os.Getpid(),
		"rootUri":      PathToURI(s.cfg.RootDir),
		"capabilities": map[string]any{},
	})
	if err != nil {
		s.kill()
		return fmt.Errorf("%w: initialize: %v", ErrSessionStart, err)
	}
	s.serverVersion = serverVersionOf(initResult)
	if err := s.client.Notify("initialized", map[string]any{}); err != nil {
		s.kill()
		return fmt.Errorf("%w: %v", ErrSessionStart, err)
	}

	s.version++
	err = s.client.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        s.uri,
			"languageId": "lean4",
			"version":    s.version,
			"text":       s.text,
		},
	})
	if err != nil {
		s.kill()
		return fmt.Errorf("%w: didOpen: %v", ErrSessionStart, err)
	}

	if err := s.waitReady(ctx); err != nil {
		s.kill()
		return fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	s.cfg.Logger.Debug("session ready",
		zap.String("file", s.filePath),
		zap.String("server_version", s.serverVersion))
	return nil
}

// waitReady blocks until the server reports the document processed. Queries
// issued before this completes would race elaboration.
func (s *Session) waitReady(ctx context.Context) error {
	_, err := s.client.Request(ctx, s.cfg.WaitMethod, map[string]any{
		"uri":     s.uri,
		"version": s.version,
	})
	if err != nil {
		return fmt.Errorf("wait for readiness: %w", err)
	}
	return nil
}

// Text returns the opened document content.
func (s *Session) Text() string {
	return s.text
}

// ServerVersion returns the server's version tag from the handshake.
func (s *Session) ServerVersion() string {
	return s.serverVersion
}

// GoalAt queries the goal state at pos. NotReady responses are retried with
// exponential backoff up to the configured bound; an unexpected process exit
// triggers at most one restart (respawn, re-open, re-query) before the
// failure is surfaced.
func (s *Session) GoalAt(ctx context.Context, pos trace.Position) (trace.GoalState, error) {
	backoff := s.cfg.ReadyBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.ReadyRetries; attempt++ {
		raw, err := s.query(ctx, pos)
		if err == nil {
			return parseGoalState(raw)
		}
		lastErr = err
		switch {
		case isNotReady(err):
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return trace.GoalState{}, ctx.Err()
			}
			backoff *= 2
		case s.processExited() && !s.restarted:
			s.restarted = true
			s.cfg.Logger.Warn("server exited mid-session, restarting once",
				zap.String("file", s.filePath), zap.Error(err))
			s.reap()
			if rerr := s.start(ctx); rerr != nil {
				return trace.GoalState{}, fmt.Errorf("restart after exit: %w", rerr)
			}
			// Retry the query against the fresh process.
		default:
			return trace.GoalState{}, err
		}
	}
	return trace.GoalState{}, fmt.Errorf("goal query at %s: retries exhausted: %w", pos, lastErr)
}

func (s *Session) query(ctx context.Context, pos trace.Position) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.client.Request(ctx, s.cfg.GoalMethod, map[string]any{
		"textDocument": map[string]any{"uri": s.uri},
		"position":     map[string]any{"line": pos.Line, "character": pos.Column},
	})
}

// reap releases a dead process before start overwrites its handle; without
// the Wait the exited child sticks around as a zombie until the run ends.
func (s *Session) reap() {
	_ = s.client.Close()
	_ = s.cmd.Wait()
}

func (s *Session) processExited() bool {
	select {
	case <-s.client.Done():
		return true
	default:
		return false
	}
}

// Close shuts the session down: didClose + shutdown request + exit
// notification, with a hard kill if the process lingers. Idempotent and safe
// after prior failures.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.client == nil || s.cmd == nil {
			return
		}
		if !s.processExited() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = s.client.Notify("textDocument/didClose", map[string]any{
				"textDocument": map[string]any{"uri": s.uri},
			})
			_, _ = s.client.Request(ctx, "shutdown", nil)
			_ = s.client.Notify("exit", nil)
		}
		_ = s.client.Close()

		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()
		select {
		case err := <-done:
			s.closeErr = err
		case <-time.After(3 * time.Second):
			s.kill()
			s.closeErr = <-done
		}
	})
	return s.closeErr
}

func (s *Session) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func isNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// PathToURI converts an absolute file path to a file:// URI.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + strings.ReplaceAll(filepath.ToSlash(abs), " ", "%20")
}

func serverVersionOf(initResult json.RawMessage) string {
	var res struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(initResult, &res); err != nil {
		return ""
	}
	if res.ServerInfo.Version == "" {
		return res.ServerInfo.Name
	}
	if res.ServerInfo.Name == "" {
		return res.ServerInfo.Version
	}
	return res.ServerInfo.Name + " " + res.ServerInfo.Version
}
