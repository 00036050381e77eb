// Copyright 2026 The Serbo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serbo

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Process is a handle on one operating system child process, with its
// standard input open for writing and its standard output (merged with
// standard error) available as a sequence of lines.
//
// The child is reaped by a goroutine started by Spawn, exactly once.  The
// handle is owned by the Instance that spawned it; it is exported so that
// it can be used and tested on its own.
type Process struct {
	id     string
	dir    string
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	reader *bufio.Reader
	done   chan struct{}
	err    error // result of Wait, valid once done is closed
	closed bool
	inDone bool // stdin closed

	wlock chan struct{} // one line at a time on stdin
	rlock sync.Mutex
	lock  sync.Mutex
}

// Only one process at a time may run in a given directory.
var dirs = struct {
	sync.Mutex
	busy map[string]bool
}{busy: make(map[string]bool)}

func dirKey(dir string) string {
	if abs, e := filepath.Abs(dir); e == nil {
		return abs
	}
	return filepath.Clean(dir)
}

func claimDir(dir string) bool {
	key := dirKey(dir)
	dirs.Lock()
	defer dirs.Unlock()
	if dirs.busy[key] {
		return false
	}
	dirs.busy[key] = true
	return true
}

func releaseDir(dir string) {
	key := dirKey(dir)
	dirs.Lock()
	delete(dirs.busy, key)
	dirs.Unlock()
}

// Spawn launches path with args, using dir as the working directory.
// Standard input is piped, and standard output and standard error share a
// single pipe so that console lines arrive in the order they were written.
func Spawn(path string, args []string, dir string) (*Process, error) {
	if !claimDir(dir) {
		return nil, ErrDirectoryBusy
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = dir

	// stdin is a plain pipe, so that writes can carry a deadline.
	ir, iw, e := os.Pipe()
	if e != nil {
		releaseDir(dir)
		return nil, causeError(ErrSpawnFailed, e)
	}
	r, w, e := os.Pipe()
	if e != nil {
		ir.Close()
		iw.Close()
		releaseDir(dir)
		return nil, causeError(ErrSpawnFailed, e)
	}
	cmd.Stdin = ir
	cmd.Stdout = w
	cmd.Stderr = w

	if e := cmd.Start(); e != nil {
		ir.Close()
		iw.Close()
		r.Close()
		w.Close()
		releaseDir(dir)
		return nil, causeError(ErrSpawnFailed, e)
	}
	// The child has its own copies now; keeping ours would hold the
	// pipes open past the exit of the child.
	ir.Close()
	w.Close()

	p := &Process{
		id:     uuid.NewString(),
		dir:    dir,
		cmd:    cmd,
		stdin:  iw,
		stdout: r,
		reader: bufio.NewReader(r),
		done:   make(chan struct{}),
		wlock:  make(chan struct{}, 1),
	}
	go p.reap()
	return p, nil
}

func (p *Process) reap() {
	e := p.cmd.Wait()
	p.lock.Lock()
	p.err = e
	p.lock.Unlock()
	releaseDir(p.dir)
	close(p.done)
}

// ID returns a unique identifier for this run of the process.
func (p *Process) ID() string {
	return p.id
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Dir returns the working directory of the process.
func (p *Process) Dir() string {
	return p.dir
}

// WriteLine writes text followed by a newline to standard input.  The line
// is written with a single write, and concurrent callers never interleave.
// It blocks while the process is not reading its input; CloseInput (or
// the exit of the process) makes it fail.
func (p *Process) WriteLine(text string) error {
	return p.writeLine(text, time.Time{})
}

// WriteLineBy is WriteLine, but gives up with ErrTimedOut at deadline,
// including while waiting for other writers.  A line cut short by the
// deadline may have been partially written.
func (p *Process) WriteLineBy(text string, deadline time.Time) error {
	return p.writeLine(text, deadline)
}

func (p *Process) writeLine(text string, deadline time.Time) error {
	var expire <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case p.wlock <- struct{}{}:
	case <-expire:
		return ErrTimedOut
	case <-p.done:
		return os.ErrClosed
	}
	defer func() { <-p.wlock }()

	if !p.Alive() {
		return os.ErrClosed
	}
	if !deadline.IsZero() {
		// Not every platform has deadlines on pipes; there the
		// write simply blocks as WriteLine would.
		p.stdin.SetWriteDeadline(deadline)
		defer p.stdin.SetWriteDeadline(time.Time{})
	}
	_, e := io.WriteString(p.stdin, text+"\n")
	if errors.Is(e, os.ErrDeadlineExceeded) {
		return ErrTimedOut
	}
	return e
}

// ReadLine returns the next line of output, without its line terminator.
// It blocks until a line is available.  io.EOF is returned once the
// process has closed its output, typically because it exited.
func (p *Process) ReadLine() (string, error) {
	p.rlock.Lock()
	defer p.rlock.Unlock()

	line, e := p.reader.ReadString('\n')
	if len(line) != 0 {
		// A final unterminated line is still a line.
		return strings.TrimRight(line, "\r\n"), nil
	}
	return "", e
}

// Alive reports whether the process has not yet been reaped.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed once the process has exited and
// been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Terminate asks the process to exit, with SIGTERM, or with SIGKILL if
// force is true.  It does not wait for the process to exit.
func (p *Process) Terminate(force bool) error {
	if !p.Alive() {
		return nil
	}
	var e error
	if force {
		e = p.cmd.Process.Kill()
	} else {
		e = p.cmd.Process.Signal(syscall.SIGTERM)
	}
	if errors.Is(e, os.ErrProcessDone) {
		return nil
	}
	return e
}

// Wait waits up to timeout for the process to exit.  It returns nil once
// the process has exited, whatever its exit status, and ErrTimedOut if it
// is still running when the timeout elapses.  The process is not killed.
// A timeout of zero or less waits forever.
func (p *Process) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-p.done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return ErrTimedOut
	}
}

// Exit returns the exit status of the process as reported by os/exec: nil
// for a clean exit, or an *exec.ExitError.  While the process is alive it
// also returns nil.
func (p *Process) Exit() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.err
}

// ExitCode returns the exit code, or -1 if the process is alive or was
// terminated by a signal.
func (p *Process) ExitCode() int {
	if p.Alive() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// CloseInput closes standard input.  Pending and later writes fail with
// an error wrapping os.ErrClosed.  Output can still be read.
func (p *Process) CloseInput() {
	p.lock.Lock()
	if p.inDone {
		p.lock.Unlock()
		return
	}
	p.inDone = true
	p.lock.Unlock()

	p.stdin.Close()
}

// Close releases the pipes.  Pending reads and writes fail.  It does not
// terminate the process.
func (p *Process) Close() {
	p.CloseInput()

	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	p.lock.Unlock()

	p.stdout.Close()
}
