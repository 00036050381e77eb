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
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogRecords(t *testing.T) {
	Convey("Given a small log", t, func() {
		l := NewLogSize(4)
		start := l.Last()

		Convey("Nothing new means nil", func() {
			recs, last := l.GetRecords(start)
			So(recs, ShouldBeNil)
			So(last, ShouldEqual, start)
		})

		Convey("Lines get consecutive ids", func() {
			l.Append("one")
			l.Append("two")
			recs, last := l.GetRecords(start)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].Text, ShouldEqual, "one")
			So(recs[1].Text, ShouldEqual, "two")
			So(recs[1].Id, ShouldEqual, recs[0].Id+1)
			So(last, ShouldEqual, recs[1].Id)

			recs, _ = l.GetRecords(recs[0].Id)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Text, ShouldEqual, "two")
		})

		Convey("Old lines are dropped", func() {
			for n := 1; n <= 6; n++ {
				l.Append(fmt.Sprintf("line %d", n))
			}
			recs, _ := l.GetRecords(0)
			So(len(recs), ShouldEqual, 4)
			So(recs[0].Text, ShouldEqual, "line 3")
			So(recs[3].Text, ShouldEqual, "line 6")
		})

		Convey("A log.Logger can write to it", func() {
			lg := log.New(l, "", 0)
			lg.Printf("hello\nworld")
			recs, _ := l.GetRecords(start)
			So(len(recs), ShouldEqual, 2)
			So(recs[1].Text, ShouldEqual, "world")
		})

		Convey("Watch wakes on a new line", func() {
			go func() {
				time.Sleep(time.Millisecond * 20)
				l.Append("late")
			}()
			last := l.Watch(start, time.Second*5)
			So(last, ShouldNotEqual, start)
		})

		Convey("Watch expires", func() {
			So(l.Watch(start, time.Millisecond*10), ShouldEqual, start)
			So(l.Watch(start, 0), ShouldEqual, start)
		})
	})
}

func TestLogSubscription(t *testing.T) {
	Convey("Given a log with an attached stream", t, func() {
		l := NewLogSize(8)
		run := l.attach()
		s1 := l.subscribe(l.Last())
		s2 := l.subscribe(l.Last())
		ctx := context.Background()

		Convey("Each subscriber sees every line in order", func() {
			for _, line := range []string{"L1", "L2", "L3"} {
				So(l.feed(run, line), ShouldBeTrue)
			}
			for _, s := range []*Subscription{s1, s2} {
				for _, want := range []string{"L1", "L2", "L3"} {
					line, e := s.Next(ctx)
					So(e, ShouldBeNil)
					So(line, ShouldEqual, want)
				}
			}
		})

		Convey("The end of the stream is reported", func() {
			l.feed(run, "last")
			l.markEOF(run)
			line, e := s1.Next(ctx)
			So(e, ShouldBeNil)
			So(line, ShouldEqual, "last")
			_, e = s1.Next(ctx)
			So(e, ShouldEqual, io.EOF)
			_, e = s1.Next(ctx)
			So(e, ShouldEqual, io.EOF)

			Convey("Even after the stream is detached", func() {
				l.detach(run)
				_, e = s2.Next(ctx)
				So(e, ShouldBeNil)
				_, e = s2.Next(ctx)
				So(e, ShouldEqual, io.EOF)
			})
		})

		Convey("Detaching without EOF means not running", func() {
			l.detach(run)
			_, e := s1.Next(ctx)
			So(e, ShouldEqual, ErrNotRunning)
		})

		Convey("A blocked reader is woken by detach", func() {
			go func() {
				time.Sleep(time.Millisecond * 20)
				l.detach(run)
			}()
			_, e := s1.Next(ctx)
			So(e, ShouldEqual, ErrNotRunning)
		})

		Convey("A blocked reader is woken by its context", func() {
			cctx, cancel := context.WithTimeout(ctx, time.Millisecond*20)
			defer cancel()
			_, e := s1.Next(cctx)
			So(e, ShouldEqual, context.DeadlineExceeded)
		})

		Convey("Only one reader at a time", func() {
			cctx, cancel := context.WithCancel(ctx)
			started := make(chan struct{})
			done := make(chan error)
			go func() {
				close(started)
				_, e := s1.Next(cctx)
				done <- e
			}()
			<-started
			time.Sleep(time.Millisecond * 20)
			_, e := s1.Next(ctx)
			So(e, ShouldEqual, ErrAlreadySubscribed)
			cancel()
			So(<-done, ShouldEqual, context.Canceled)
		})

		Convey("A slow reader is told it fell behind", func() {
			for n := 1; n <= 12; n++ {
				l.feed(run, fmt.Sprintf("L%d", n))
			}
			_, e := s1.Next(ctx)
			So(e, ShouldEqual, ErrOutputOverrun)
			line, e := s1.Next(ctx)
			So(e, ShouldBeNil)
			So(line, ShouldEqual, "L5")
		})

		Convey("A new stream ends the old one", func() {
			l.feed(run, "old")
			l.markEOF(run)
			l.detach(run)
			run2 := l.attach()
			So(l.feed(run, "stale"), ShouldBeFalse)
			So(l.feed(run2, "new"), ShouldBeTrue)

			line, e := s1.Next(ctx)
			So(e, ShouldBeNil)
			So(line, ShouldEqual, "old")
			_, e = s1.Next(ctx)
			So(e, ShouldEqual, io.EOF)

			s3 := l.subscribe(0)
			recs, _ := l.GetRecords(0)
			So(recs[len(recs)-1].Text, ShouldEqual, "new")
			So(s3.run, ShouldEqual, run2)
		})
	})
}

func TestMultiLogger(t *testing.T) {
	Convey("Given a MultiLogger", t, func() {
		ml := NewMultiLogger()
		l1 := NewLog()
		l2 := NewLog()
		lg1 := log.New(l1, "", 0)
		lg2 := log.New(l2, "", 0)
		ml.AddLogger(lg1)
		ml.AddLogger(lg2)
		ml.AddLogger(lg1)
		So(ml.Len(), ShouldEqual, 2)

		ml.Logger().Printf("both")
		r1, _ := l1.GetRecords(0)
		r2, _ := l2.GetRecords(0)
		So(len(r1), ShouldEqual, 1)
		So(len(r2), ShouldEqual, 1)
		So(r1[0].Text, ShouldEqual, "both")

		Convey("Prefixed loggers keep their prefix", func() {
			ml.NewLogger("[x] ").Printf("hi")
			r1, _ := l1.GetRecords(0)
			So(r1[len(r1)-1].Text, ShouldEqual, "[x] hi")
		})

		Convey("Removed loggers get nothing more", func() {
			ml.DelLogger(lg2)
			So(ml.Len(), ShouldEqual, 1)
			ml.Logger().Printf("one")
			r2, _ := l2.GetRecords(0)
			So(len(r2), ShouldEqual, 1)
		})
	})
}
