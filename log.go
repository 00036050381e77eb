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
	"io"
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
	run  int64
}

// Log is a bounded history of lines.  Every line gets an id, one higher
// than the line before it, so that readers can keep their own position
// (a cursor) and never get in each other's way.  A Log is used both for
// the Manager's event log and for the console output of each Instance.
//
// A console Log also tracks the stream currently feeding it.  Each
// process run attaches a new stream; readers that follow one run learn
// when it has ended.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	run        int64 // current stream
	open       bool  // stream attached and not yet released
	eof        bool  // stream reached end of file
	prevRun    int64
	prevEOF    bool
	cv         *sync.Cond
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

// append adds a line.  Call with lock held.
func (log *Log) append(text string) {
	if log.records == nil {
		log.records = make([]LogRecord, log.maxRecords)
		log.numRecords = 0
	}
	idx := log.numRecords % log.maxRecords
	log.id++
	log.records[idx] = LogRecord{
		Id:   log.id,
		Time: time.Now(),
		Text: text,
		run:  log.run,
	}
	// NB: numRecords may actually be more than maxRecords.
	// In that case, we've looped, but we use this really to
	// track the next index.
	log.numRecords++
}

// Write implements the Writer interface consumed by Logger.
func (log *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	log.lock()
	for _, line := range strings.Split(str, "\n") {
		log.append(line)
	}
	log.cv.Broadcast()
	log.unlock()
	return len(b), nil
}

// Append adds a single line of text.
func (log *Log) Append(text string) {
	log.lock()
	log.append(text)
	log.cv.Broadcast()
	log.unlock()
}

// feed adds a line read from stream run.  Lines from a stream that has
// since been replaced are dropped.
func (log *Log) feed(run int64, text string) bool {
	log.lock()
	defer log.unlock()
	if log.run != run {
		return false
	}
	log.append(text)
	log.cv.Broadcast()
	return true
}

// Last returns the id of the most recent line.
func (log *Log) Last() int64 {
	log.lock()
	defer log.unlock()
	return log.id
}

// oldest returns the id of the oldest line still held.  Call with lock
// held.
func (log *Log) oldest() int64 {
	n := log.numRecords
	if n > log.maxRecords {
		n = log.maxRecords
	}
	return log.id - int64(n) + 1
}

// record returns the line with the given id, which must be held.
func (log *Log) record(id int64) *LogRecord {
	base := log.id - int64(log.numRecords)
	return &log.records[int(id-base-1)%log.maxRecords]
}

// GetRecords returns the records newer than last, as well as the id of
// the newest record, suitable for use as the next value of last (or as an
// Etag).  If nothing has changed since last, it returns nil immediately.
// Passing zero returns everything still held.  Note that IDs are not
// unique across different Log instances.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()

	if log.id == last {
		return nil, last
	}
	start := log.oldest()
	if last >= start && last < log.id {
		start = last + 1
	}
	recs := make([]LogRecord, 0, log.id-start+1)
	for id := start; id <= log.id; id++ {
		recs = append(recs, *log.record(id))
	}
	return recs, log.id
}

// Watch waits for the log to move past last, for at most expire.  It
// returns the newest id, which is last if nothing happened.  A poll can be
// done by supplying 0 for the expiration.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			log.cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	for log.id == last && !expired {
		log.cv.Wait()
	}
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// attach starts a new stream, and returns its number.
func (log *Log) attach() int64 {
	log.lock()
	log.prevRun = log.run
	log.prevEOF = log.eof
	log.run++
	log.open = true
	log.eof = false
	log.cv.Broadcast()
	run := log.run
	log.unlock()
	return run
}

// markEOF notes that the stream run has no more output.
func (log *Log) markEOF(run int64) {
	log.lock()
	if log.run == run {
		log.eof = true
	}
	log.cv.Broadcast()
	log.unlock()
}

// detach notes that the stream run has been released by its owner.
func (log *Log) detach(run int64) {
	log.lock()
	if log.run == run {
		log.open = false
	}
	log.cv.Broadcast()
	log.unlock()
}

// ended returns the result for a reader of a stream that has been replaced
// by a newer one.  Call with lock held.
func (log *Log) ended(run int64) error {
	if run == log.prevRun && log.prevEOF {
		return io.EOF
	}
	return ErrNotRunning
}

// Subscription is a reader of the console output of one process run, with
// its own position.  Many subscriptions may follow the same run; each sees
// every line, and a slow one never holds up the others.  A Subscription
// serves one reader at a time.
type Subscription struct {
	log    *Log
	run    int64
	cursor int64
	busy   sync.Mutex
}

// subscribe returns a Subscription to the current stream that will see
// lines newer than from.
func (log *Log) subscribe(from int64) *Subscription {
	log.lock()
	defer log.unlock()
	return &Subscription{log: log, run: log.run, cursor: from}
}

// Next returns the next line of output.  It blocks until a line is
// available, the stream ends (io.EOF), the process is released without
// reaching the end of its output (ErrNotRunning), or ctx is done.  If the
// reader fell so far behind that lines were discarded, ErrOutputOverrun is
// returned once, and reading resumes with the oldest line still held.
//
// Another call already in progress on the same Subscription makes Next
// fail at once with ErrAlreadySubscribed.
func (s *Subscription) Next(ctx context.Context) (string, error) {
	if !s.busy.TryLock() {
		return "", ErrAlreadySubscribed
	}
	defer s.busy.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	log := s.log

	stop := context.AfterFunc(ctx, func() {
		log.lock()
		log.cv.Broadcast()
		log.unlock()
	})
	defer stop()

	log.lock()
	defer log.unlock()
	for {
		if s.cursor < log.id {
			if oldest := log.oldest(); s.cursor+1 < oldest {
				s.cursor = oldest - 1
				return "", ErrOutputOverrun
			}
			rec := log.record(s.cursor + 1)
			if rec.run != s.run {
				return "", log.ended(s.run)
			}
			s.cursor++
			return rec.Text, nil
		}
		if log.run != s.run {
			return "", log.ended(s.run)
		}
		if log.eof {
			return "", io.EOF
		}
		if !log.open {
			return "", ErrNotRunning
		}
		if e := ctx.Err(); e != nil {
			return "", e
		}
		log.cv.Wait()
	}
}

// Cursor returns the id of the last line returned.
func (s *Subscription) Cursor() int64 {
	s.log.lock()
	defer s.log.unlock()
	return s.cursor
}

// NewLog returns a Log instance.
func NewLog() *Log {
	return NewLogSize(MaxLogRecords)
}

// NewLogSize returns a Log that holds at most size lines.
func NewLogSize(size int) *Log {
	if size <= 0 {
		size = MaxLogRecords
	}
	log := &Log{
		maxRecords: size,
		id:         time.Now().UnixNano(),
	}
	log.cv = sync.NewCond(&log.mx)
	return log
}
