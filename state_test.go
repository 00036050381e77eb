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

func TestStateTransitions(t *testing.T) {
	Convey("The state machine", t, func() {
		legal := []struct {
			from State
			ev   event
			to   State
		}{
			{Stopped, evStart, Starting},
			{Starting, evReady, Running},
			{Starting, evStop, Stopping},
			{Starting, evExit, Stopped},
			{Running, evStop, Stopping},
			{Running, evExit, Stopped},
			{Stopping, evStop, Stopping},
			{Stopping, evExit, Stopped},
		}

		Convey("Allows the documented transitions", func() {
			for _, tr := range legal {
				to, e := tr.from.next(tr.ev)
				So(e, ShouldBeNil)
				So(to, ShouldEqual, tr.to)
			}
		})

		Convey("Rejects everything else, staying put", func() {
			for _, from := range []State{Stopped, Starting, Running, Stopping} {
				for _, ev := range []event{evStart, evReady, evStop, evExit} {
					ok := false
					for _, tr := range legal {
						if tr.from == from && tr.ev == ev {
							ok = true
						}
					}
					if ok {
						continue
					}
					to, e := from.next(ev)
					So(e, ShouldEqual, ErrInvalidState)
					So(to, ShouldEqual, from)
				}
			}
		})

		Convey("Has names", func() {
			So(Stopped.String(), ShouldEqual, "stopped")
			So(Running.String(), ShouldEqual, "running")
			So(State(42).String(), ShouldEqual, "invalid")
			So(evReady.String(), ShouldEqual, "ready")
		})
	})
}
