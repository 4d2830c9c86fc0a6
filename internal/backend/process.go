// Package backend locates and supervises the local Auto-Antigravity server.
package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const (
	ScriptName = "run.py"
	apiKeyEnv  = "ANTIGRAVITY_API_KEY"
)

var (
	ErrNotFound       = errors.New("backend server not found")
	ErrAlreadyRunning = errors.New("backend server already running")
	ErrNotRunning     = errors.New("backend server not running")
)

type Options struct {
	PythonPath string
	APIKey     string
	// Dirs are searched in order for run.py.
	Dirs   []string
	Logger *zap.Logger
}

// CandidateDirs lists where the server usually lives: the configured
// directory, ./server, then ../server next to the executable.
func CandidateDirs(configured string) []string {
	var dirs []string
	if configured != "" {
		dirs = append(dirs, configured)
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(wd, "server"))
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "..", "server"))
	}
	return dirs
}

// Find returns the first directory containing run.py.
func Find(dirs []string) (string, bool) {
	for _, dir := range dirs {
		info, err := os.Stat(filepath.Join(dir, ScriptName))
		if err == nil && !info.IsDir() {
			return dir, true
		}
	}
	return "", false
}

type Process struct {
	opts   Options
	logger *zap.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	dir  string
	done chan struct{}
}

func New(opts Options) *Process {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PythonPath == "" {
		opts.PythonPath = "python"
	}
	return &Process{opts: opts, logger: opts.Logger.Named("backend")}
}

// Start spawns the server from its own directory. The process outlives ctx
// only until Stop; ctx cancellation kills it too.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyRunning
	}

	dir, ok := Find(p.opts.Dirs)
	if !ok {
		p.logger.Warn("server not found, running without backend", zap.Strings("searched", p.opts.Dirs))
		return ErrNotFound
	}
	p.logger.Info("server found", zap.String("dir", dir))

	cmd := exec.CommandContext(ctx, p.opts.PythonPath, ScriptName)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	if p.opts.APIKey != "" {
		cmd.Env = append(cmd.Env, apiKeyEnv+"="+p.opts.APIKey)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s %s: %w", p.opts.PythonPath, ScriptName, err)
	}

	var streams sync.WaitGroup
	streams.Add(2)
	go p.pipe(&streams, stdout, "[Server]", false)
	go p.pipe(&streams, stderr, "[Server ERROR]", true)

	done := make(chan struct{})
	p.cmd, p.dir, p.done = cmd, dir, done
	go func() {
		streams.Wait()
		err := cmd.Wait()
		p.logger.Info("[Server] process exited", zap.Int("code", cmd.ProcessState.ExitCode()), zap.Error(err))
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

func (p *Process) pipe(wg *sync.WaitGroup, r io.Reader, prefix string, isErr bool) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if isErr {
			p.logger.Warn(prefix + " " + line)
		} else {
			p.logger.Info(prefix + " " + line)
		}
	}
}

func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Dir is the directory the running server was started from.
func (p *Process) Dir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dir
}

// Stop kills the server and waits for it to exit.
func (p *Process) Stop() error {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.mu.Unlock()
	if cmd == nil {
		return ErrNotRunning
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill backend: %w", err)
	}
	<-done
	return nil
}
