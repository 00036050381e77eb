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
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"syscall"
	"time"
)

// drainTime bounds how long we wait for the output of an exited process to
// be consumed before releasing it.  A grandchild holding the pipe open must
// not keep the instance from stopping.
const drainTime = time.Second * 2

// Instance is one named server.  It owns at most one Process at a time,
// and moves through the states described by State.
//
// Start, Stop, SetVersion, Restart and Switch are serialized against one
// another, so at most one of them is in progress for an Instance at any
// time.  SendCommand, NextOutputLine and the accessors never wait for
// those, and may be used from any goroutine while they run.
type Instance struct {
	name     string
	dir      string
	versions Versions
	launcher Launcher
	notify   func(*Instance)
	created  time.Time

	opmx sync.Mutex // serializes lifecycle operations
	mx   sync.Mutex // guards the fields below

	state    State
	version  string
	proc     *Process
	run      int64
	pumpDone chan struct{}
	abort    chan struct{} // closed to abandon a pending start
	abortGr  time.Duration // grace given by the Stop that closed abort
	primary  *Subscription
	deleted  bool
	serial   int64
	reason   string
	stamp    time.Time
	err      error
	pol      policy

	restartPending bool
	starts         int
	startTimes     []time.Time
	rateLog        bool

	console *Log
	mlog    *MultiLogger
}

// InstanceInfo is a consistent snapshot of an Instance.
type InstanceInfo struct {
	Name      string
	Directory string
	Version   string
	State     State
	Pid       int    // 0 when stopped
	RunID     string // empty when stopped
	Port      int
	Reason    string
	Stamp     time.Time
	Created   time.Time
	Serial    int64
	Err       error
}

func newInstance(name, dir, version string, vers Versions, l Launcher) *Instance {
	i := &Instance{
		name:     name,
		dir:      dir,
		version:  version,
		versions: vers,
		launcher: l,
		created:  time.Now(),
		state:    Stopped,
		pol:      defaultPolicy(),
		console:  NewLog(),
		mlog:     NewMultiLogger(),
		reason:   "Created",
	}
	i.stamp = i.created
	i.mlog.Logger().SetPrefix("[" + name + "] ")
	return i
}

func (i *Instance) lock() {
	i.mx.Lock()
}

func (i *Instance) unlock() {
	i.mx.Unlock()
}

func (i *Instance) logf(format string, v ...interface{}) {
	i.mlog.Logger().Printf(format, v...)
}

// changed reports a change to whoever is watching.  Call without i.mx held.
func (i *Instance) changed() {
	if cb := i.notify; cb != nil {
		cb(i)
	}
}

// setReason records a status message.  Call with lock held.
func (i *Instance) setReason(reason string, err error) {
	i.reason = reason
	i.err = err
	i.stamp = time.Now()
}

// Name returns the name of the instance.  It never changes.
func (i *Instance) Name() string {
	return i.name
}

// Directory returns the working directory of the server.  It never changes.
func (i *Instance) Directory() string {
	return i.dir
}

// Version returns the version the instance launches.
func (i *Instance) Version() string {
	i.lock()
	defer i.unlock()
	return i.version
}

// State returns the current state.  It never blocks on a lifecycle
// operation in progress.
func (i *Instance) State() State {
	i.lock()
	defer i.unlock()
	return i.state
}

// Status returns the most recent status message, and when it was recorded.
func (i *Instance) Status() (string, time.Time) {
	i.lock()
	defer i.unlock()
	return i.reason, i.stamp
}

func (i *Instance) Info() InstanceInfo {
	i.lock()
	defer i.unlock()
	info := InstanceInfo{
		Name:      i.name,
		Directory: i.dir,
		Version:   i.version,
		State:     i.state,
		Port:      i.pol.port,
		Reason:    i.reason,
		Stamp:     i.stamp,
		Created:   i.created,
		Serial:    i.serial,
		Err:       i.err,
	}
	if i.proc != nil {
		info.Pid = i.proc.Pid()
		info.RunID = i.proc.ID()
	}
	return info
}

// Start launches the server, and waits for it to become ready.  On any
// failure the instance is left Stopped, with no process.
func (i *Instance) Start() error {
	i.opmx.Lock()
	defer i.opmx.Unlock()

	i.lock()
	i.restartPending = false
	i.starts = 0
	i.rateLog = false
	i.unlock()
	return opError(i.name, "start", i.start("Started"))
}

func (i *Instance) start(detail string) error {
	i.lock()
	if i.deleted {
		i.unlock()
		return ErrNotFound
	}
	next, e := i.state.next(evStart)
	if e != nil {
		i.unlock()
		return e
	}
	version := i.version
	pol := i.pol
	i.unlock()

	fail := func(e error) error {
		i.lock()
		i.setReason("Failed to start: "+e.Error(), e)
		i.unlock()
		i.logf("Failed to start %s: %v", i.name, e)
		i.changed()
		return e
	}

	jar, e := i.versions.Jar(version)
	if e != nil {
		return fail(e)
	}
	if fi, e := os.Stat(i.dir); e != nil {
		return fail(causeError(ErrFilesystem, e))
	} else if !fi.IsDir() {
		return fail(ErrFilesystem)
	}
	path, args, e := i.launcher.Command(LaunchSpec{
		Name:    i.name,
		Version: version,
		Jar:     jar,
		Dir:     i.dir,
		Port:    pol.port,
	})
	if e != nil {
		return fail(causeError(ErrSpawnFailed, e))
	}
	proc, e := Spawn(path, args, i.dir)
	if e != nil {
		return fail(e)
	}

	ready := make(chan struct{})
	abort := make(chan struct{})
	pumpDone := make(chan struct{})
	run := i.console.attach()

	i.lock()
	i.state = next
	i.proc = proc
	i.run = run
	i.pumpDone = pumpDone
	i.abort = abort
	i.primary = i.console.subscribe(i.console.Last())
	i.recordStart()
	i.setReason("Starting", nil)
	i.unlock()
	i.logf("Starting %s (version %s, pid %d)", i.name, version, proc.Pid())
	i.changed()

	go i.pump(proc, run, pol, ready, pumpDone)
	go i.watch(proc, pumpDone)

	if pol.ready == nil {
		// Alive is all we ask for.
		close(ready)
	}
	var timeout <-chan time.Time
	if pol.startTimeout > 0 {
		timer := time.NewTimer(pol.startTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ready:
	case <-proc.Done():
		drain(pumpDone)
		i.release(proc, "Exited during startup")
		return fail(causeError(ErrStartupFailed, proc.Exit()))
	case <-timeout:
		i.logf("Server %s not ready after %v", i.name, pol.startTimeout)
		i.lock()
		if i.proc == proc {
			i.state, _ = i.state.next(evStop)
		}
		i.unlock()
		forceKill(proc)
		if proc.Wait(pol.killTime) != nil {
			i.lock()
			i.setReason("Kill failed", ErrKillFailed)
			i.unlock()
			i.changed()
			return errors.Join(ErrStartupFailed, ErrKillFailed)
		}
		i.release(proc, "Startup timed out")
		return fail(causeError(ErrStartupFailed, ErrTimedOut))
	case <-abort:
		i.lock()
		grace := i.abortGr
		i.unlock()
		i.logf("Start of %s abandoned", i.name)
		if e := i.stop(grace, "Start abandoned"); e != nil {
			return errors.Join(ErrStartupFailed, e)
		}
		return fail(ErrStartupFailed)
	}

	i.lock()
	i.abort = nil
	if i.proc != proc || i.state != Starting || !proc.Alive() {
		i.unlock()
		drain(pumpDone)
		i.release(proc, "Exited during startup")
		return fail(causeError(ErrStartupFailed, proc.Exit()))
	}
	i.state, _ = i.state.next(evReady)
	i.setReason(detail, nil)
	i.unlock()
	i.logf("%s %s", detail, i.name)
	i.changed()
	return nil
}

// pump copies the console output of proc into the console Log.
func (i *Instance) pump(proc *Process, run int64, pol policy, ready chan struct{}, done chan struct{}) {
	defer close(done)
	signalled := pol.ready == nil
	for {
		line, e := proc.ReadLine()
		if e != nil {
			if errors.Is(e, io.EOF) {
				i.console.markEOF(run)
			}
			return
		}
		if !i.console.feed(run, line) {
			continue
		}
		if pol.outLogger != nil {
			pol.outLogger.Printf("%s> %s", i.name, line)
		}
		if !signalled && pol.ready.MatchString(line) {
			signalled = true
			close(ready)
		}
	}
}

// watch releases proc after it exits on its own.
func (i *Instance) watch(proc *Process, pumpDone chan struct{}) {
	<-proc.Done()
	drain(pumpDone)
	reason := "Exited"
	if e := proc.Exit(); e != nil {
		reason = "Exited: " + e.Error()
	}
	i.release(proc, reason)
}

// forceKill ends a process that outlived its grace period.  Its input
// is closed too, releasing writers blocked on it.
var forceKill = func(proc *Process) {
	proc.Terminate(true)
	proc.CloseInput()
}

// until returns the time left before deadline, at least a nanosecond.
func until(deadline time.Time) time.Duration {
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return time.Nanosecond
}

func drain(done <-chan struct{}) {
	timer := time.NewTimer(drainTime)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
}

// release gives up ownership of proc, which must have exited, and moves the
// instance to Stopped.  Releasing a process that is no longer ours does
// nothing, so every path that sees an exit may call it.
func (i *Instance) release(proc *Process, reason string) {
	i.lock()
	if i.proc != proc {
		i.unlock()
		return
	}
	prev := i.state
	i.state, _ = i.state.next(evExit)
	i.proc = nil
	i.pumpDone = nil
	i.abort = nil
	run := i.run
	var err error
	if prev == Running && proc.Exit() != nil {
		err = causeError(ErrCrashed, proc.Exit())
	}
	i.setReason(reason, err)
	heal := prev == Running && i.pol.restart && !i.deleted
	if heal {
		i.restartPending = true
	}
	i.unlock()

	i.console.detach(run)
	proc.Close()
	if prev == Running {
		i.logf("Server %s stopped unexpectedly: %s", i.name, reason)
	} else {
		i.logf("Server %s stopped: %s", i.name, reason)
	}
	i.changed()
	if heal {
		go i.selfHeal()
	}
}

// recordStart notes a start for rate limiting.  Call with lock held.
func (i *Instance) recordStart() {
	if i.pol.rateLimit > 0 {
		if len(i.startTimes) != i.pol.rateLimit {
			i.startTimes = make([]time.Time, i.pol.rateLimit)
			i.starts = 0
		}
		i.startTimes[i.starts%i.pol.rateLimit] = time.Now()
	}
	i.starts++
}

// An instance is restarting too quickly if it restarts more than a
// configured number of times in a period.  Once we hit that threshold, we
// wait for a full period before we will restart again.  Call with lock held.
func (i *Instance) tooQuickly() error {
	limit := i.pol.rateLimit
	if limit == 0 || len(i.startTimes) != limit || i.starts < limit {
		return nil
	}

	idx := (i.starts - 1) % limit
	end := i.startTimes[idx]
	if time.Now().Before(end.Add(i.pol.ratePeriod)) {
		if !i.rateLog {
			i.logf("Server %s restarting too quickly", i.name)
		}
		i.rateLog = true
		return ErrRateLimited
	}
	if !i.rateLog {
		return nil
	}

	// Cool down from an earlier rate limit.
	idx = (i.starts - 2 + limit) % limit
	end = i.startTimes[idx]
	if time.Now().Before(end.Add(i.pol.ratePeriod)) {
		return ErrRateLimited
	}
	i.rateLog = false
	return nil
}

func (i *Instance) selfHeal() {
	i.opmx.Lock()
	defer i.opmx.Unlock()

	i.lock()
	pending := i.restartPending && !i.deleted && i.state == Stopped
	i.restartPending = false
	var e error
	if pending {
		if e = i.tooQuickly(); e != nil {
			i.setReason("Not restarted: "+e.Error(), e)
		}
	}
	i.unlock()
	if !pending {
		return
	}
	if e != nil {
		i.changed()
		return
	}
	i.logf("Attempting self-healing of %s", i.name)
	if e := i.start("Self-healing attempt"); e != nil {
		i.logf("Self-healing of %s failed: %v", i.name, e)
	}
}

// Stop stops the server.  The configured stop command is written to the
// console (SIGTERM is sent instead when there is none), and the server is
// given grace to exit; a grace of zero or less uses PropStopTime.  After
// that the process is killed.  If it still has not exited after
// PropKillTime, ErrKillFailed is returned and the instance stays Stopping.
//
// Stopping an instance that is already Stopped does nothing, and is not an
// error.  A Start still waiting for the server to become ready is abandoned,
// and fails with ErrStartupFailed.
func (i *Instance) Stop(grace time.Duration) error {
	i.lock()
	if i.abort != nil {
		i.abortGr = grace
		close(i.abort)
		i.abort = nil
	}
	i.unlock()

	i.opmx.Lock()
	defer i.opmx.Unlock()
	return opError(i.name, "stop", i.stop(grace, "Stopped"))
}

func (i *Instance) stop(grace time.Duration, detail string) error {
	i.lock()
	i.restartPending = false
	if i.state == Stopped {
		i.unlock()
		return nil
	}
	next, e := i.state.next(evStop)
	if e != nil {
		i.unlock()
		return e
	}
	i.state = next
	proc := i.proc
	pumpDone := i.pumpDone
	pol := i.pol
	i.setReason("Stopping", nil)
	i.unlock()
	i.changed()

	if grace <= 0 {
		grace = pol.stopTime
	}
	// The grace period covers sending the stop command, which blocks if
	// the server is not reading its console.
	deadline := time.Now().Add(grace)
	if proc.Alive() {
		sent := false
		if pol.stopCmd != "" {
			sent = proc.WriteLineBy(pol.stopCmd, deadline) == nil
		}
		if !sent {
			proc.Terminate(false)
		}
	}
	if proc.Wait(until(deadline)) != nil {
		i.logf("Server %s did not stop within %v, killing it", i.name, grace)
		forceKill(proc)
		if proc.Wait(pol.killTime) != nil {
			i.lock()
			i.setReason("Kill failed", ErrKillFailed)
			i.unlock()
			i.logf("Server %s survived a kill (pid %d)", i.name, proc.Pid())
			i.changed()
			return ErrKillFailed
		}
	}
	if pumpDone != nil {
		drain(pumpDone)
	}
	i.release(proc, detail)
	return nil
}

// Restart stops the server, if it is running, and starts it again.
func (i *Instance) Restart(grace time.Duration) error {
	i.opmx.Lock()
	defer i.opmx.Unlock()

	if e := i.stop(grace, "Restarting"); e != nil {
		return opError(i.name, "restart", e)
	}
	return opError(i.name, "restart", i.start("Restarted"))
}

// SetVersion changes the version launched by the next Start.  It is only
// permitted while Stopped.  On failure the version is unchanged.
func (i *Instance) SetVersion(version string) error {
	i.opmx.Lock()
	defer i.opmx.Unlock()
	return opError(i.name, "set version", i.setVersion(version))
}

func (i *Instance) setVersion(version string) error {
	i.lock()
	if i.deleted {
		i.unlock()
		return ErrNotFound
	}
	if i.state != Stopped {
		i.unlock()
		return ErrInvalidState
	}
	i.unlock()

	if _, e := i.versions.Jar(version); e != nil {
		return e
	}

	i.lock()
	old := i.version
	i.version = version
	i.restartPending = false
	i.setReason("Version set to "+version, nil)
	i.unlock()
	i.logf("Changed version of %s from %s to %s", i.name, old, version)
	i.changed()
	return nil
}

// Switch restarts the server under another version.  The version is
// checked before the server is stopped, so a missing version leaves a
// running server alone.
func (i *Instance) Switch(version string, grace time.Duration) error {
	i.opmx.Lock()
	defer i.opmx.Unlock()

	if _, e := i.versions.Jar(version); e != nil {
		return opError(i.name, "switch", e)
	}
	if e := i.stop(grace, "Switching to "+version); e != nil {
		return opError(i.name, "switch", e)
	}
	if e := i.setVersion(version); e != nil {
		return opError(i.name, "switch", e)
	}
	return opError(i.name, "switch", i.start("Switched to "+version))
}

// SendCommand writes a line to the server console.  It is permitted while
// Starting or Running.  Lines from concurrent callers never interleave.
func (i *Instance) SendCommand(text string) error {
	i.lock()
	proc := i.proc
	state := i.state
	i.unlock()

	if proc == nil || (state != Starting && state != Running) {
		return opError(i.name, "send", ErrNotRunning)
	}
	if e := proc.WriteLine(text); e != nil {
		if !proc.Alive() || errors.Is(e, os.ErrClosed) || errors.Is(e, syscall.EPIPE) {
			return opError(i.name, "send", ErrNotRunning)
		}
		return opError(i.name, "send", e)
	}
	return nil
}

// NextOutputLine returns the next line of console output, waiting for one
// if needed.  Every start begins a fresh stream; lines written before the
// most recent start are never returned.  It returns io.EOF once the server
// has closed its output, and ErrNotRunning if the instance is Stopped or
// the process was released before its output ended.
//
// Only one call may be in progress at a time; a second concurrent call
// fails with ErrAlreadySubscribed.  Use Subscribe for additional readers.
func (i *Instance) NextOutputLine(ctx context.Context) (string, error) {
	i.lock()
	sub := i.primary
	state := i.state
	i.unlock()

	if state == Stopped || sub == nil {
		return "", opError(i.name, "read", ErrNotRunning)
	}
	line, e := sub.Next(ctx)
	if e == io.EOF || errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
		return "", e
	}
	return line, opError(i.name, "read", e)
}

// Subscribe returns an independent reader of the console output of the
// current run, starting with the next line written.
func (i *Instance) Subscribe() (*Subscription, error) {
	i.lock()
	defer i.unlock()
	if i.state == Stopped {
		return nil, opError(i.name, "subscribe", ErrNotRunning)
	}
	return i.console.subscribe(i.console.Last()), nil
}

// GetLog returns the console history newer than last.  The history
// survives the process, so it may be used while Stopped.
func (i *Instance) GetLog(last int64) ([]LogRecord, int64) {
	return i.console.GetRecords(last)
}

// WatchLog waits up to expire for console output newer than last.
func (i *Instance) WatchLog(last int64, expire time.Duration) int64 {
	return i.console.Watch(last, expire)
}

// SetProperty sets a property on the instance.  Changes take effect at the
// next start, except for PropLogger, PropRestart and the rate limits, which
// apply at once.
func (i *Instance) SetProperty(n PropertyName, v interface{}) error {
	i.lock()
	old := i.pol.logger
	e := i.pol.set(n, v)
	if e == nil {
		switch n {
		case PropRateLimit, PropRatePeriod:
			i.startTimes = nil
			i.starts = 0
			i.rateLog = false
		}
	}
	logger := i.pol.logger
	i.unlock()

	if e != nil {
		i.logf("Failed to set property %s on %s: %v", n, i.name, e)
		return opError(i.name, "set property", e)
	}
	if n == PropLogger && old != logger {
		i.mlog.DelLogger(old)
		i.mlog.AddLogger(logger)
	}
	return nil
}

func (i *Instance) Property(n PropertyName) (interface{}, error) {
	i.lock()
	defer i.unlock()
	switch n {
	case PropName:
		return i.name, nil
	case PropDirectory:
		return i.dir, nil
	case PropVersion:
		return i.version, nil
	}
	return i.pol.get(n)
}

// retire marks the instance deleted, provided it is Stopped.  Later
// operations on it fail with ErrNotFound.
func (i *Instance) retire() error {
	i.opmx.Lock()
	defer i.opmx.Unlock()
	i.lock()
	defer i.unlock()

	if i.deleted {
		return ErrNotFound
	}
	if i.state != Stopped {
		return ErrInstanceNotStopped
	}
	i.deleted = true
	i.restartPending = false
	i.setReason("Deleted", nil)
	return nil
}

// addLogger attaches a destination for the instance's messages.
func (i *Instance) addLogger(l *log.Logger) {
	i.mlog.AddLogger(l)
}
