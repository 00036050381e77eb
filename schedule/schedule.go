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

// Package schedule runs instance actions on cron schedules, for example
// a nightly restart or a periodic save-all.
package schedule

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/gdamore/serbo"
)

// Actions understood by the scheduler.
const (
	ActionCommand = "command"
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// AllInstances as the instance name applies the entry to every instance
// it makes sense for: start to the Stopped ones, the rest to the Running
// ones.
const AllInstances = "*"

// Target is what the scheduler acts on.  A *serbo.Manager is a Target.
type Target interface {
	List() []serbo.InstanceInfo
	Start(name string) error
	Stop(name string, grace time.Duration) error
	Restart(name string, grace time.Duration) error
	SendCommand(name, text string) error
}

// Entry is one scheduled action.
type Entry struct {
	Spec     string
	Instance string
	Action   string
	Command  string
}

func (e Entry) String() string {
	s := fmt.Sprintf("%s %s on %s", e.Spec, e.Action, e.Instance)
	if e.Action == ActionCommand {
		s += fmt.Sprintf(" (%q)", e.Command)
	}
	return s
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse checks a cron spec.  Five fields, an optional leading seconds
// field, and descriptors such as @daily or "@every 30m" are accepted.
func Parse(spec string) (cron.Schedule, error) {
	return parser.Parse(spec)
}

// ValidAction reports whether action is known.
func ValidAction(action string) bool {
	return lo.Contains([]string{ActionCommand, ActionStart, ActionStop, ActionRestart}, action)
}

// Validate checks the entry without scheduling it.
func (e Entry) Validate() error {
	if _, err := Parse(e.Spec); err != nil {
		return fmt.Errorf("bad schedule %q: %w", e.Spec, err)
	}
	if !ValidAction(e.Action) {
		return fmt.Errorf("schedule %q: unknown action %q", e.Spec, e.Action)
	}
	if e.Action == ActionCommand && strings.TrimSpace(e.Command) == "" {
		return fmt.Errorf("schedule %q: command action needs a command", e.Spec)
	}
	if e.Instance == "" {
		return fmt.Errorf("schedule %q: no instance", e.Spec)
	}
	return nil
}

// Scheduler runs Entries against a Target.
type Scheduler struct {
	target Target
	logger *log.Logger
	cron   *cron.Cron
	ids    map[cron.EntryID]Entry
	mx     sync.Mutex
}

// New returns a stopped Scheduler.  Messages go to logger.
func New(t Target, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		target: t,
		logger: logger,
		ids:    make(map[cron.EntryID]Entry),
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cron.PrintfLogger(logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	return s
}

// Add schedules e.  It may be called while the Scheduler is running.
func (s *Scheduler) Add(e Entry) (cron.EntryID, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(e.Spec, func() {
		if err := s.Run(e); err != nil {
			s.logger.Printf("Scheduled %s: %v", e, err)
		}
	})
	if err != nil {
		return 0, err
	}
	s.mx.Lock()
	s.ids[id] = e
	s.mx.Unlock()
	return id, nil
}

// Remove unschedules an entry added earlier.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
	s.mx.Lock()
	delete(s.ids, id)
	s.mx.Unlock()
}

// Next returns when the entry will next run, or the zero time if it is
// unknown or the Scheduler is not running.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Entries returns the scheduled entries.
func (s *Scheduler) Entries() []Entry {
	s.mx.Lock()
	defer s.mx.Unlock()
	return lo.Values(s.ids)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling, and waits for running actions to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run performs the action of e now.  When the entry names every instance,
// the action is applied to each in turn, and the errors are joined.
func (s *Scheduler) Run(e Entry) error {
	names := []string{e.Instance}
	if e.Instance == AllInstances {
		want := serbo.Running
		if e.Action == ActionStart {
			want = serbo.Stopped
		}
		names = lo.FilterMap(s.target.List(), func(info serbo.InstanceInfo, _ int) (string, bool) {
			return info.Name, info.State == want
		})
	}
	var errs []error
	for _, name := range names {
		if err := s.run(e, name); err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Printf("Scheduled %s on %s done", e.Action, name)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) run(e Entry, name string) error {
	switch e.Action {
	case ActionCommand:
		return s.target.SendCommand(name, e.Command)
	case ActionStart:
		return s.target.Start(name)
	case ActionStop:
		return s.target.Stop(name, 0)
	case ActionRestart:
		return s.target.Restart(name, 0)
	}
	return fmt.Errorf("unknown action %q", e.Action)
}
