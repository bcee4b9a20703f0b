package serverpool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
)

// BinaryName is the WhisperKit server executable.
const BinaryName = "whisperkit-cli"

// LaunchSpec describes one server process.
type LaunchSpec struct {
	ModelID   string
	ModelPath string
	Host      string
	Port      int
}

// Process is a running server.
type Process interface {
	// Wait blocks until the process exits. It may be called concurrently.
	Wait() error
	// Kill terminates the process.
	Kill() error
}

// Launcher starts server processes.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher runs whisperkit-cli serve as a child process.
type ExecLauncher struct {
	BinaryPath string
	WorkDir    string
	Verbose    bool
}

// Launch starts the server. Child stdout and stderr are logged at debug level.
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	bin := l.BinaryPath
	if bin == "" {
		bin = FindBinary()
	}
	if bin == "" {
		return nil, fmt.Errorf("%s binary not found", BinaryName)
	}

	args := []string{
		"serve",
		"--model-path", spec.ModelPath,
		"--host", spec.Host,
		"--port", strconv.Itoa(spec.Port),
	}
	if l.Verbose {
		args = append(args, "--verbose")
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = l.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	slog.Info("server process started", "model", spec.ModelID, "port", spec.Port, "pid", cmd.Process.Pid)

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	p.readers.Add(2)
	go p.logLines(stdout, spec.ModelID, "stdout")
	go p.logLines(stderr, spec.ModelID, "stderr")
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	readers sync.WaitGroup
	done    chan struct{}
	err     error
}

func (p *execProcess) logLines(r io.Reader, model, stream string) {
	defer p.readers.Done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Debug("server output", "model", model, "stream", stream, "line", sc.Text())
	}
}

// wait drains the pipes before reaping, as exec.Cmd requires.
func (p *execProcess) wait() {
	p.readers.Wait()
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// FindBinary looks for whisperkit-cli on PATH, inside the app bundle, and in
// a local development build. It returns "" when nothing is found.
func FindBinary() string {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path
	}

	var candidates []string
	if execPath, err := os.Executable(); err == nil {
		dir := filepath.Dir(execPath)
		if runtime.GOOS == "darwin" {
			candidates = append(candidates, filepath.Join(dir, "..", "Resources", "whisperkit", BinaryName))
		}
		candidates = append(candidates, filepath.Join(dir, "whisperkit", BinaryName))
	}
	candidates = append(candidates,
		filepath.Join("WhisperKit", ".build", "release", BinaryName),
		filepath.Join("/opt/homebrew/bin", BinaryName),
		filepath.Join("/usr/local/bin", BinaryName),
	)

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
