package codex

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m4xw311/codexgram/errors"
)

// Process is one running codex app-server invocation. It is owned exclusively
// by a single turn and is terminated unconditionally when that turn ends,
// never reused.
type Process struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd      *exec.Cmd
	killOnce sync.Once
}

// StartProcess spawns the codex app-server with pipes on all three streams.
// The executable is resolved from the override (config or CODEX_COMMAND),
// falling back to a PATH lookup of the platform binary name. Failures are
// reported as *LaunchError.
func StartProcess(override string) (*Process, error) {
	env := processEnv()
	path, err := resolveCommand(override, env)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}

	cmd := exec.Command(path, "app-server")
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Err: err}
	}

	return &Process{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		cmd:    cmd,
	}, nil
}

// PID returns the OS process id, or zero for a process not backed by the OS
// (tests substitute pipe-backed processes).
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill terminates the process and closes its streams. The caller's cleanup
// path and the cancellation watchdog may both call it; exec.Cmd.Wait is not
// safe to reach twice, so the teardown runs exactly once and later calls
// return after it has completed.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		if p.Stdin != nil {
			_ = p.Stdin.Close()
		}
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
			// Reap the child so it does not linger as a zombie.
			_ = p.cmd.Wait()
		}
		if p.Stdout != nil {
			_ = p.Stdout.Close()
		}
		if p.Stderr != nil {
			_ = p.Stderr.Close()
		}
	})
}

func resolveCommand(override string, env []string) (string, error) {
	name := override
	if name == "" {
		name = os.Getenv("CODEX_COMMAND")
	}
	if name != "" {
		if strings.ContainsRune(name, os.PathSeparator) {
			return name, nil
		}
		return lookPath(name, env)
	}

	name = "codex"
	if runtime.GOOS == "windows" {
		name = "codex.cmd"
	}
	path, err := lookPath(name, env)
	if err != nil {
		return "", errors.Wrapf(err, "codex CLI not found in PATH; install it or set CODEX_COMMAND")
	}
	return path, nil
}

// processEnv returns the ambient environment with ~ expanded in PATH entries,
// since shell-style PATH fragments survive in some launcher environments.
func processEnv() []string {
	env := os.Environ()
	home, err := os.UserHomeDir()
	if err != nil {
		return env
	}
	for i, kv := range env {
		if !strings.HasPrefix(kv, "PATH=") {
			continue
		}
		entries := filepath.SplitList(strings.TrimPrefix(kv, "PATH="))
		for j, entry := range entries {
			if entry == "~" || strings.HasPrefix(entry, "~"+string(os.PathSeparator)) {
				entries[j] = filepath.Join(home, entry[1:])
			}
		}
		env[i] = "PATH=" + strings.Join(entries, string(os.PathListSeparator))
	}
	return env
}

// lookPath searches the (already ~-expanded) PATH carried in env rather than
// the ambient one, so the resolution and the spawned process agree.
func lookPath(name string, env []string) (string, error) {
	pathVal := ""
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			pathVal = strings.TrimPrefix(kv, "PATH=")
		}
	}
	for _, dir := range filepath.SplitList(pathVal) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
			continue
		}
		return candidate, nil
	}
	return "", errors.New("%s not found in PATH", name)
}
