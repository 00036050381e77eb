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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTemplateLauncher(t *testing.T) {
	Convey("Given the default launcher", t, func() {
		l := DefaultLauncher()
		spec := LaunchSpec{
			Name:    "alpha",
			Version: "1.16.1",
			Jar:     "/v/1.16.1/server.jar",
			Dir:     "/s/alpha",
		}

		Convey("It runs java on the jarfile", func() {
			path, args, e := l.Command(spec)
			So(e, ShouldBeNil)
			So(path, ShouldEqual, "java")
			So(args, ShouldResemble, []string{"-Xmx1024M", "-Xms1024M",
				"-jar", "/v/1.16.1/server.jar", "nogui"})
		})

		Convey("It passes the port when there is one", func() {
			spec.Port = 25570
			_, args, e := l.Command(spec)
			So(e, ShouldBeNil)
			So(args[len(args)-2:], ShouldResemble, []string{"--port", "25570"})
		})
	})

	Convey("Placeholders are replaced inside words", t, func() {
		l := NewTemplateLauncher("run", "--name={name}", "{dir}/logs", "{version}")
		path, args, e := l.Command(LaunchSpec{Name: "a", Dir: "/d", Version: "v"})
		So(e, ShouldBeNil)
		So(path, ShouldEqual, "run")
		So(args, ShouldResemble, []string{"--name=a", "/d/logs", "v"})
	})

	Convey("An empty template is an error", t, func() {
		_, _, e := NewTemplateLauncher().Command(LaunchSpec{})
		So(e, ShouldNotBeNil)
		_, _, e = NewTemplateLauncher("{port}").Command(LaunchSpec{})
		So(e, ShouldNotBeNil)
	})
}
