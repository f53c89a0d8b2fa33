// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

//go:build unix

package interp

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// setPgid arranges for the command to start in its own process group, so
// that a background job has a pgid of its own and foreground signals do not
// reach it.
func setPgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// waitSignal reports the signal that terminated a process, if any.
func waitSignal(ee *exec.ExitError) (int, bool) {
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return int(ws.Signal()), true
	}
	return 0, false
}

// trappableSignals are the signals the shell subscribes to; other signals
// keep their default disposition.
func trappableSignals() []os.Signal {
	return []os.Signal{
		unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT,
		unix.SIGUSR1, unix.SIGUSR2,
	}
}

func describeSignal(sig os.Signal) (name string, num int) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return sig.String(), 0
	}
	name = unix.SignalName(s)
	return trimSigPrefix(name), int(s)
}

func signalByName(name string) (os.Signal, bool) {
	s := unix.SignalNum("SIG" + name)
	if s == 0 {
		return nil, false
	}
	return s, true
}

func signalNameByNumber(s string) (string, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", false
	}
	name := unix.SignalName(syscall.Signal(n))
	if name == "" {
		return "", false
	}
	return trimSigPrefix(name), true
}

func trimSigPrefix(name string) string {
	if len(name) > 3 && name[:3] == "SIG" {
		return name[3:]
	}
	return name
}

// umask sets the file creation mask, returning the previous one.
func umask(mask int) int {
	return unix.Umask(mask)
}

// currentUmask reads the mask without changing it. The mask is process-wide
// state, so this briefly sets and restores it.
func currentUmask() int {
	mask := unix.Umask(0)
	unix.Umask(mask)
	return mask
}

// cpuTimes returns the user and system CPU time consumed by the shell and
// by its terminated children, for the times builtin.
func cpuTimes() (selfUser, selfSys, childUser, childSys time.Duration) {
	var self, children unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &self); err == nil {
		selfUser = time.Duration(self.Utime.Nano())
		selfSys = time.Duration(self.Stime.Nano())
	}
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &children); err == nil {
		childUser = time.Duration(children.Utime.Nano())
		childSys = time.Duration(children.Stime.Nano())
	}
	return selfUser, selfSys, childUser, childSys
}
