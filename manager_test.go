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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package serbo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// memStore is a Store kept in memory.
type memStore struct {
	recs    map[string]Record
	delFail error // returned by Delete, when set
	sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]Record)}
}

func (s *memStore) Put(rec Record) error {
	s.Lock()
	defer s.Unlock()
	s.recs[rec.Name] = rec
	return nil
}

func (s *memStore) Delete(name string) error {
	s.Lock()
	defer s.Unlock()
	if s.delFail != nil {
		return s.delFail
	}
	delete(s.recs, name)
	return nil
}

func (s *memStore) Records() ([]Record, error) {
	s.Lock()
	defer s.Unlock()
	recs := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(a, b int) bool {
		return recs[a].Created.Before(recs[b].Created)
	})
	return recs, nil
}

func TestManagerScenario(t *testing.T) {
	Convey("Given a manager with version 1.16.1", t,
		WithManager(t, "normal", func(m *Manager) {

			Convey("Creating alpha gives a stopped instance", func() {
				inst, e := m.Create("alpha", "1.16.1")
				So(e, ShouldBeNil)
				So(inst.State(), ShouldEqual, Stopped)
				So(inst.Directory(), ShouldEqual, filepath.Join(m.ServerRoot(), "alpha"))
				fi, e := os.Stat(inst.Directory())
				So(e, ShouldBeNil)
				So(fi.IsDir(), ShouldBeTrue)

				Convey("Which runs, answers, and stops", func() {
					So(m.Start("alpha"), ShouldBeNil)
					So(inst.State(), ShouldEqual, Running)

					_, e := readUntil(inst, DefaultReadyPattern)
					So(e, ShouldBeNil)
					So(m.SendCommand("alpha", "list"), ShouldBeNil)
					line, e := m.NextOutputLine(context.Background(), "alpha")
					So(e, ShouldBeNil)
					So(line, ShouldEqual, "There are 0 of a max of 20 players online:")

					So(m.Stop("alpha", time.Second*5), ShouldBeNil)
					So(inst.State(), ShouldEqual, Stopped)
				})

				Convey("Which cannot be deleted while running", func() {
					So(m.Start("alpha"), ShouldBeNil)
					So(m.Delete("alpha"), shouldWrap, ErrInstanceNotStopped)
					So(m.Names(), ShouldResemble, []string{"alpha"})
					So(inst.State(), ShouldEqual, Running)
				})

				Convey("Which keeps its version when asked for a missing one", func() {
					So(m.ChangeVersion("alpha", "9.9.9"), shouldWrap, ErrVersionNotFound)
					So(inst.Version(), ShouldEqual, "1.16.1")
				})

				Convey("Whose version cannot change while running", func() {
					So(m.Start("alpha"), ShouldBeNil)
					So(m.ChangeVersion("alpha", "1.17"), shouldWrap, ErrInstanceNotStopped)
					So(inst.Version(), ShouldEqual, "1.16.1")
				})

				Convey("Whose version changes while stopped", func() {
					So(m.ChangeVersion("alpha", "1.17"), ShouldBeNil)
					So(inst.Version(), ShouldEqual, "1.17")
				})

				Convey("Which cannot be created twice", func() {
					_, e := m.Create("alpha", "1.17")
					So(e, shouldWrap, ErrNameExists)
				})

				Convey("Which can be deleted, leaving its files", func() {
					So(m.Delete("alpha"), ShouldBeNil)
					_, e := m.Get("alpha")
					So(e, shouldWrap, ErrNotFound)
					_, e = os.Stat(inst.Directory())
					So(e, ShouldBeNil)
					So(inst.Start(), shouldWrap, ErrNotFound)
				})

				Convey("Which can be purged, with its files", func() {
					So(m.Purge("alpha"), ShouldBeNil)
					_, e := os.Stat(inst.Directory())
					So(os.IsNotExist(e), ShouldBeTrue)
				})
			})

			Convey("Starting an unknown instance fails", func() {
				So(m.Start("missing"), shouldWrap, ErrNotFound)
				So(m.Stop("missing", time.Second), shouldWrap, ErrNotFound)
				So(m.ChangeVersion("missing", "1.17"), shouldWrap, ErrNotFound)
				So(m.Delete("missing"), shouldWrap, ErrNotFound)
				So(m.SendCommand("missing", "list"), shouldWrap, ErrNotFound)
			})

			Convey("Bad names are refused", func() {
				for _, name := range []string{"", "..", "a/b", "-x", "has space"} {
					_, e := m.Create(name, "1.16.1")
					So(e, shouldWrap, ErrInvalidName)
				}
			})

			Convey("Missing versions are refused", func() {
				_, e := m.Create("beta", "9.9.9")
				So(e, shouldWrap, ErrVersionNotFound)
				So(m.Names(), ShouldBeEmpty)
				_, e = os.Stat(filepath.Join(m.ServerRoot(), "beta"))
				So(os.IsNotExist(e), ShouldBeTrue)
			})

			Convey("An unusable server root is a filesystem error", func() {
				So(os.WriteFile(filepath.Join(m.ServerRoot(), "blocked"), nil, 0644), ShouldBeNil)
				_, e := m.Create("blocked", "1.16.1")
				So(e, shouldWrap, ErrFilesystem)
			})
		}))
}

func TestManagerConcurrency(t *testing.T) {
	Convey("Given two instances", t,
		WithManager(t, "normal", func(m *Manager) {
			_, e := m.Create("A", "1.16.1")
			So(e, ShouldBeNil)
			_, e = m.Create("B", "1.17")
			So(e, ShouldBeNil)

			Convey("They are listed in creation order", func() {
				list := m.List()
				So(len(list), ShouldEqual, 2)
				So(list[0].Name, ShouldEqual, "A")
				So(list[0].State, ShouldEqual, Stopped)
				So(list[1].Name, ShouldEqual, "B")
				So(list[1].Version, ShouldEqual, "1.17")
			})

			Convey("They start concurrently", func() {
				var wg sync.WaitGroup
				errs := make([]error, 2)
				for n, name := range []string{"A", "B"} {
					wg.Add(1)
					go func(n int, name string) {
						defer wg.Done()
						errs[n] = m.Start(name)
					}(n, name)
				}
				wg.Wait()
				So(errs[0], ShouldBeNil)
				So(errs[1], ShouldBeNil)
				for _, info := range m.List() {
					So(info.State, ShouldEqual, Running)
				}

				Convey("And shut down together", func() {
					So(m.Shutdown(time.Second*5), ShouldBeNil)
					for _, info := range m.List() {
						So(info.State, ShouldEqual, Stopped)
					}
				})
			})

			Convey("A stop of one does not wait on the start of another", func() {
				b, _ := m.Get("B")
				So(b.SetProperty(PropReadyPattern, "never matches"), ShouldBeNil)
				So(b.SetProperty(PropStartTimeout, time.Second*2), ShouldBeNil)
				started := make(chan error, 1)
				go func() {
					started <- m.Start("B")
				}()
				time.Sleep(time.Millisecond * 100)
				So(b.State(), ShouldEqual, Starting)

				So(m.Start("A"), ShouldBeNil)
				So(m.Stop("A", time.Second*5), ShouldBeNil)
				So(b.State(), ShouldEqual, Starting)
				So(<-started, shouldWrap, ErrStartupFailed)
			})

			Convey("Watchers see changes", func() {
				serial := m.Serial()
				done := make(chan int64, 1)
				go func() {
					done <- m.WatchSerial(serial, time.Second*5)
				}()
				So(m.Start("A"), ShouldBeNil)
				So(<-done, ShouldNotEqual, serial)
				So(m.WatchSerial(m.Serial(), 0), ShouldEqual, m.Serial())
			})
		}))
}

func TestManagerStore(t *testing.T) {
	Convey("Given a manager with a store", t,
		WithManager(t, "normal", func(m *Manager) {
			store := newMemStore()
			m.SetStore(store)
			_, e := m.Create("one", "1.16.1")
			So(e, ShouldBeNil)
			_, e = m.Create("two", "1.16.1")
			So(e, ShouldBeNil)
			So(m.ChangeVersion("two", "1.17"), ShouldBeNil)

			recs, e := store.Records()
			So(e, ShouldBeNil)
			So(len(recs), ShouldEqual, 2)

			Convey("A new manager restores the instances", func() {
				m2 := NewManager(m.ServerRoot(), m.VersionRoot(), "server.jar")
				m2.SetLogWriter(&testLog{t: t})
				m2.SetStore(store)
				So(m2.Restore(), ShouldBeNil)
				So(m2.Names(), ShouldResemble, []string{"one", "two"})
				two, e := m2.Get("two")
				So(e, ShouldBeNil)
				So(two.Version(), ShouldEqual, "1.17")
				So(two.State(), ShouldEqual, Stopped)

				Convey("Restoring twice changes nothing", func() {
					So(m2.Restore(), ShouldBeNil)
					So(m2.Names(), ShouldResemble, []string{"one", "two"})
				})
			})

			Convey("Deleted instances are forgotten", func() {
				So(m.Delete("one"), ShouldBeNil)
				recs, _ := store.Records()
				So(len(recs), ShouldEqual, 1)
				So(recs[0].Name, ShouldEqual, "two")
			})

			Convey("A store that cannot forget is reported", func() {
				broken := errors.New("disk full")
				store.Lock()
				store.delFail = broken
				store.Unlock()

				So(m.Delete("one"), shouldWrap, broken)
				So(m.Names(), ShouldResemble, []string{"two"})
				recs, _ := store.Records()
				So(len(recs), ShouldEqual, 2)

				Convey("But purge still removes the files", func() {
					dir := filepath.Join(m.ServerRoot(), "two")
					So(m.Purge("two"), shouldWrap, broken)
					_, e := os.Stat(dir)
					So(os.IsNotExist(e), ShouldBeTrue)
				})
			})
		}))
}

func TestManagerLog(t *testing.T) {
	Convey("The manager keeps a log of what happened", t,
		WithManager(t, "normal", func(m *Manager) {
			_, last := m.GetLog(0)
			_, e := m.Create("logged", "1.16.1")
			So(e, ShouldBeNil)
			So(m.Start("logged"), ShouldBeNil)

			recs, _ := m.GetLog(last)
			So(len(recs), ShouldBeGreaterThanOrEqualTo, 2)
			So(recs[0].Text, ShouldContainSubstring, "Created instance logged")
			found := false
			for _, r := range recs {
				if r.Text == "[logged] Started logged" {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		}))
}
