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

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/serbo"

	. "github.com/smartystreets/goconvey/convey"
)

func shouldWrap(actual interface{}, expected ...interface{}) string {
	err, _ := actual.(error)
	target, _ := expected[0].(error)
	if errors.Is(err, target) {
		return ""
	}
	return fmt.Sprintf("Expected error %v to wrap %v", err, target)
}

// testManager sets up a Manager running the fake server from the
// library's test data, with version 1.0 and 2.0 available.
func testManager(t *testing.T) *serbo.Manager {
	script, e := os.ReadFile(filepath.Join("..", "testdata", "fakeserver.sh"))
	So(e, ShouldBeNil)

	top := t.TempDir()
	servers := filepath.Join(top, "servers")
	versions := filepath.Join(top, "versions")
	So(os.MkdirAll(servers, 0755), ShouldBeNil)
	for _, v := range []string{"1.0", "2.0"} {
		dir := filepath.Join(versions, v)
		So(os.MkdirAll(dir, 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "server.jar"), script, 0755), ShouldBeNil)
	}

	m := serbo.NewManager(servers, versions, "server.jar")
	m.SetLogger(stdlog.New(io.Discard, "", 0))
	m.SetLauncher(serbo.NewTemplateLauncher("/bin/sh", "{jar}"))
	So(m.SetProperty(serbo.PropStopTime, time.Second*2), ShouldBeNil)
	So(m.SetProperty(serbo.PropKillTime, time.Second*2), ShouldBeNil)
	So(m.SetProperty(serbo.PropStartTimeout, time.Second*5), ShouldBeNil)
	return m
}

func TestConsole(t *testing.T) {
	Convey("Given a console", t, func() {
		m := testManager(t)
		out := &bytes.Buffer{}
		c := NewConsole(m, out)
		Reset(func() {
			m.Shutdown(time.Second)
		})

		Convey("Help lists the commands", func() {
			So(c.Exec("help"), ShouldBeNil)
			for name := range commands {
				So(out.String(), ShouldContainSubstring, commands[name].usage)
			}
		})

		Convey("Blank lines and comments do nothing", func() {
			So(c.Exec(""), ShouldBeNil)
			So(c.Exec("   "), ShouldBeNil)
			So(c.Exec("# start everything"), ShouldBeNil)
			So(out.Len(), ShouldEqual, 0)
		})

		Convey("Bad commands are refused", func() {
			So(c.Exec("frobnicate"), ShouldNotBeNil)
			So(c.Exec("create onlyname"), ShouldNotBeNil)
			So(c.Exec("stop"), ShouldNotBeNil)
			So(c.Exec("start nosuch"), shouldWrap, serbo.ErrNotFound)
		})

		Convey("Versions are listed", func() {
			So(c.Exec("versions"), ShouldBeNil)
			So(out.String(), ShouldEqual, "1.0\n2.0\n")
		})

		Convey("A server can be created", func() {
			So(c.Exec("create alpha 1.0"), ShouldBeNil)
			So(m.Names(), ShouldResemble, []string{"alpha"})
			So(c.Exec("create alpha 1.0"), shouldWrap, serbo.ErrNameExists)
			So(c.Exec("create beta 9.9"), shouldWrap, serbo.ErrVersionNotFound)

			Convey("And listed", func() {
				out.Reset()
				So(c.Exec("list"), ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "NAME")
				So(out.String(), ShouldContainSubstring, "alpha")
				So(out.String(), ShouldContainSubstring, "stopped")
			})

			Convey("And run", func() {
				So(c.Exec("start alpha"), ShouldBeNil)
				So(c.Exec("send alpha say hello there"), ShouldBeNil)
				deadline := time.Now().Add(time.Second * 5)
				for time.Now().Before(deadline) {
					out.Reset()
					So(c.Exec("log alpha 5"), ShouldBeNil)
					if strings.Contains(out.String(), "[Server] hello there") {
						break
					}
					time.Sleep(time.Millisecond * 50)
				}
				So(out.String(), ShouldContainSubstring, "[Server] hello there")

				So(c.Exec("version alpha 2.0"), shouldWrap, serbo.ErrInstanceNotStopped)
				So(c.Exec("delete alpha"), shouldWrap, serbo.ErrInstanceNotStopped)
				So(c.Exec("switch alpha 2.0 5s"), ShouldBeNil)
				inst, e := m.Get("alpha")
				So(e, ShouldBeNil)
				So(inst.Version(), ShouldEqual, "2.0")
				So(inst.State(), ShouldEqual, serbo.Running)

				So(c.Exec("stop alpha 2"), ShouldBeNil)
				So(inst.State(), ShouldEqual, serbo.Stopped)
			})

			Convey("And given a port", func() {
				So(c.Exec("port alpha 25570"), ShouldBeNil)
				inst, _ := m.Get("alpha")
				So(inst.Info().Port, ShouldEqual, 25570)
				So(c.Exec("port alpha many"), ShouldNotBeNil)
			})

			Convey("And purged", func() {
				inst, _ := m.Get("alpha")
				So(c.Exec("purge alpha"), ShouldBeNil)
				So(m.Names(), ShouldBeEmpty)
				_, e := os.Stat(inst.Directory())
				So(os.IsNotExist(e), ShouldBeTrue)
			})

			Convey("The event log shows it", func() {
				out.Reset()
				So(c.Exec("log"), ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "Created instance alpha")
			})
		})

		Convey("Run stops at quit", func() {
			in := strings.NewReader("create alpha 1.0\nbogus\nquit\ncreate beta 1.0\n")
			So(c.Run(in), ShouldBeNil)
			So(m.Names(), ShouldResemble, []string{"alpha"})
			So(out.String(), ShouldContainSubstring, "Error: unknown command")
		})

		Convey("Run stops at end of input", func() {
			So(c.Run(strings.NewReader("create alpha 1.0\n")), ShouldBeNil)
			So(m.Names(), ShouldResemble, []string{"alpha"})
		})
	})
}

func TestGraceArg(t *testing.T) {
	Convey("Grace periods", t, func() {
		d, e := graceArg([]string{"x"}, 1)
		So(e, ShouldBeNil)
		So(d, ShouldEqual, 0)
		d, e = graceArg([]string{"x", "30"}, 1)
		So(e, ShouldBeNil)
		So(d, ShouldEqual, time.Second*30)
		d, e = graceArg([]string{"x", "2m"}, 1)
		So(e, ShouldBeNil)
		So(d, ShouldEqual, time.Minute*2)
		_, e = graceArg([]string{"x", "soon"}, 1)
		So(e, ShouldNotBeNil)
	})
}
