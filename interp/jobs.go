// Copyright (c) 2024, the posh authors
// See LICENSE for licensing information

package interp

import (
	"strconv"
	"strings"

	"github.com/poshsh/posh/syntax"
)

// job is a background statement spawned by this shell. The shell runs jobs
// on goroutines rather than forked processes, so job IDs double as the PIDs
// reported via $! and accepted by wait. External processes started by a job
// run in their own process group.
type job struct {
	id   int
	text string

	// closed when the job finishes, after which exit is set
	done chan struct{}
	exit *exitStatus

	// reported is set once wait or jobs has seen the job finish, after
	// which the job can be dropped from the table
	reported bool
}

func (j *job) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (r *Runner) addJob(st *syntax.Stmt) *job {
	id := 1
	if n := len(r.jobs); n > 0 {
		id = r.jobs[n-1].id + 1
	}
	j := &job{
		id:   id,
		text: syntax.NewPrinter().String(st) + " &",
		done: make(chan struct{}),
		exit: new(exitStatus),
	}
	r.jobs = append(r.jobs, j)
	r.lastBgPID = id
	return j
}

// reapJobs drops jobs that have finished and whose status has been
// reported or waited for. Called at statement boundaries.
func (r *Runner) reapJobs() {
	kept := r.jobs[:0]
	for _, j := range r.jobs {
		if j.finished() && j.reported {
			continue
		}
		kept = append(kept, j)
	}
	r.jobs = kept
}

// findJob resolves a wait or jobs operand: "%n" for a job ID, or the plain
// ID number that $! reported.
func (r *Runner) findJob(arg string) *job {
	id, err := strconv.Atoi(strings.TrimPrefix(arg, "%"))
	if err != nil {
		return nil
	}
	for _, j := range r.jobs {
		if j.id == id {
			return j
		}
	}
	return nil
}

// waitJobs implements the wait builtin: with no operands, wait for every
// known job; otherwise wait for each named job, returning the status of the
// last one.
func (r *Runner) waitJobs(args []string) int {
	if len(args) == 0 {
		for _, j := range r.jobs {
			<-j.done
			j.reported = true
		}
		r.reapJobs()
		return 0
	}
	code := 0
	for _, arg := range args {
		j := r.findJob(arg)
		if j == nil {
			// POSIX: waiting for an unknown process yields 127
			code = 127
			continue
		}
		<-j.done
		j.reported = true
		code = int(j.exit.code)
	}
	r.reapJobs()
	return code
}

// printJobs implements the jobs builtin.
func (r *Runner) printJobs(args []string) int {
	show := r.jobs
	if len(args) > 0 {
		show = show[:0:0]
		for _, arg := range args {
			if j := r.findJob(arg); j != nil {
				show = append(show, j)
			}
		}
	}
	for i, j := range show {
		current := ' '
		if i == len(show)-1 {
			current = '+'
		} else if i == len(show)-2 {
			current = '-'
		}
		state := "Running"
		if j.finished() {
			if j.exit.code == 0 {
				state = "Done"
			} else {
				state = "Done(" + strconv.Itoa(int(j.exit.code)) + ")"
			}
			j.reported = true
		}
		r.outf("[%d]%c  %s\t%s\n", j.id, current, state, j.text)
	}
	r.reapJobs()
	return 0
}
