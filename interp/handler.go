// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/poshsh/posh/expand"
)

// HandlerContext is the data passed to a command or file handler. It is
// stored within the context, and can be fetched via [HandlerCtx].
type HandlerContext struct {
	// Env is a read-only version of the interpreter's environment,
	// including environment variables, global variables, and local function
	// variables.
	Env expand.Environ

	// Dir is the interpreter's current directory.
	Dir string

	// Stdin, Stdout, and Stderr are the interpreter's standard streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Background is set when the command is part of a background job, in
	// which case external processes should be started in their own process
	// group.
	Background bool
}

type handlerCtxKey struct{}

// HandlerCtx returns [HandlerContext] value stored within the context, or an
// empty one if none was stored.
func HandlerCtx(ctx context.Context) HandlerContext {
	hc, _ := ctx.Value(handlerCtxKey{}).(HandlerContext)
	return hc
}

// ExecHandlerFunc is a handler which executes simple commands. It is
// responsible for returning exit status codes via [ExitStatus], printing its
// own error messages to the context's stderr, and honoring the context's
// cancellation.
//
// The args slice always holds at least one element, the command name.
type ExecHandlerFunc func(ctx context.Context, args []string) error

// DefaultExecHandler returns an [ExecHandlerFunc] which runs commands via
// [os/exec], looking up relative command names in $PATH. A command which is
// not found exits with status 127, and one which cannot be executed with
// 126. If the context is cancelled while the command runs, it is sent
// SIGINT, and killed after killTimeout if it has still not exited. A
// negative killTimeout means the command is killed immediately.
func DefaultExecHandler(killTimeout time.Duration) ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := HandlerCtx(ctx)
		path, err := LookPathDir(hc.Dir, hc.Env, args[0])
		if err != nil {
			fmt.Fprintln(hc.Stderr, err)
			return ExitStatus(127)
		}
		cmd := exec.Cmd{
			Path:   path,
			Args:   args,
			Env:    execEnv(hc.Env),
			Dir:    hc.Dir,
			Stdin:  hc.Stdin,
			Stdout: hc.Stdout,
			Stderr: hc.Stderr,
		}
		if hc.Background {
			setPgid(&cmd)
		}
		if err := cmd.Start(); err != nil {
			if errors.Is(err, os.ErrPermission) {
				fmt.Fprintf(hc.Stderr, "%s: permission denied\n", args[0])
				return ExitStatus(126)
			}
			fmt.Fprintln(hc.Stderr, err)
			return ExitStatus(127)
		}

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			if cmd.Process != nil {
				if killTimeout <= 0 {
					_ = cmd.Process.Kill()
				} else {
					_ = cmd.Process.Signal(os.Interrupt)
					select {
					case err = <-done:
						return waitError(err)
					case <-time.After(killTimeout):
						_ = cmd.Process.Kill()
					}
				}
			}
			err = <-done
		}
		return waitError(err)
	}
}

// waitError converts the error from [exec.Cmd.Wait] into an [ExitStatus],
// mapping termination by a signal to 128+N.
func waitError(err error) error {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return err
	}
	if sig, ok := waitSignal(ee); ok {
		return ExitStatus(128 + sig)
	}
	return ExitStatus(ee.ExitCode())
}

// OpenHandlerFunc is a handler which opens files, as used for redirections.
// Note that implementations which do not return [*os.File] will prevent the
// file from being used as a process's standard input directly; a pipe will
// be used to copy the data instead.
type OpenHandlerFunc func(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error)

// DefaultOpenHandler returns an [OpenHandlerFunc] which uses [os.OpenFile],
// mapping /dev/null to a portable equivalent.
func DefaultOpenHandler() OpenHandlerFunc {
	return func(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
		if path == "/dev/null" {
			path = os.DevNull
		}
		return os.OpenFile(path, flag, perm)
	}
}

// LookPath finds the named executable in $PATH, relative to the current
// process's directory.
func LookPath(env expand.Environ, file string) (string, error) {
	return LookPathDir("", env, file)
}

// LookPathDir is similar to [os/exec.LookPath], with the difference that it
// uses the given environment's PATH, and that relative candidate paths are
// made absolute against cwd.
func LookPathDir(cwd string, env expand.Environ, file string) (string, error) {
	if strings.Contains(file, "/") {
		path := absPath(cwd, file)
		if err := isExecutable(path); err != nil {
			return "", err
		}
		return path, nil
	}
	for _, elem := range filepath.SplitList(env.Get("PATH").String()) {
		if elem == "" {
			elem = "."
		}
		path := absPath(cwd, filepath.Join(elem, file))
		if err := isExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%q: executable file not found in $PATH", file)
}

func isExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if m := info.Mode(); m.IsDir() || m&0o111 == 0 {
		return os.ErrPermission
	}
	return nil
}

func absPath(dir, path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return filepath.Clean(path)
}

// execEnv flattens the exported variables into the "key=value" form needed
// by [os/exec].
func execEnv(env expand.Environ) []string {
	list := make([]string, 0, 64)
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported {
			if s, ok := vr.Value.(string); ok {
				list = append(list, name+"="+s)
			}
		}
		return true
	})
	return list
}
