package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Local executes task commands as host processes. Host paths are
// visible directly, so inputs are never remapped. Concurrency across
// executions is bounded by a weighted semaphore.
type Local struct {
	logger *zap.Logger
	sem    *semaphore.Weighted
}

// NewLocal creates a local backend allowing up to maxConcurrent
// simultaneous commands; zero means the host CPU count.
func NewLocal(maxConcurrent int64, logger *zap.Logger) *Local {
	if maxConcurrent <= 0 {
		maxConcurrent = int64(runtime.NumCPU())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{logger: logger, sem: semaphore.NewWeighted(maxConcurrent)}
}

func (l *Local) Name() string { return "local" }

func (l *Local) CreateExecution(rootDir string) (Execution, error) {
	work := filepath.Join(rootDir, "work")
	tmp := filepath.Join(rootDir, "tmp")
	for _, dir := range []string{work, tmp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating execution directory: %w", err)
		}
	}
	return &localExecution{
		backend: l,
		root:    rootDir,
		work:    work,
		tmp:     tmp,
		stdout:  filepath.Join(rootDir, "stdout"),
		stderr:  filepath.Join(rootDir, "stderr"),
	}, nil
}

type localExecution struct {
	backend *Local
	root    string
	work    string
	tmp     string
	stdout  string
	stderr  string
}

func (e *localExecution) Constraints(req *Requirements, hints Hints) (*Constraints, error) {
	cpu := req.CPU
	if cpu <= 0 {
		cpu = 1
	}
	if max := float64(runtime.NumCPU()); cpu > max {
		cpu = max
	}
	if len(req.Container) > 0 {
		e.backend.logger.Warn("container requirement is ignored by the local backend",
			zap.String("container", req.Container[0]))
	}
	return &Constraints{CPU: cpu, Memory: req.Memory}, nil
}

// MapPath is the identity for the local backend: commands see host
// paths directly.
func (e *localExecution) MapPath(string) (string, bool) { return "", false }

func (e *localExecution) Spawn(ctx context.Context, command string, req *Requirements, hints Hints, env []string) (int, error) {
	if err := e.backend.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer e.backend.sem.Release(1)

	stdout, err := os.Create(e.stdout)
	if err != nil {
		return 0, fmt.Errorf("creating stdout file: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(e.stderr)
	if err != nil {
		return 0, fmt.Errorf("creating stderr file: %w", err)
	}
	defer stderr.Close()

	scriptPath := filepath.Join(e.root, "command")
	if err := os.WriteFile(scriptPath, []byte(command), 0o644); err != nil {
		return 0, fmt.Errorf("writing command file: %w", err)
	}

	cmd := exec.CommandContext(ctx, "bash", scriptPath)
	cmd.Dir = e.work
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), env...)

	e.backend.logger.Debug("spawning local command",
		zap.String("work_dir", e.work),
		zap.Int("env", len(env)))

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("spawning command: %w", err)
}

func (e *localExecution) WorkDir() string { return e.work }
func (e *localExecution) TempDir() string { return e.tmp }
func (e *localExecution) Stdout() string  { return e.stdout }
func (e *localExecution) Stderr() string  { return e.stderr }
