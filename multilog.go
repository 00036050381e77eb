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
	"log"
	"strings"
	"sync"
)

// MultiLogger is an io.Writer that hands every line written to it to each
// of a set of loggers.  The Manager uses it so that messages from every
// instance reach the Manager's event Log as well as whatever loggers the
// application installed (a terminal, a rotating file, a test).  Each
// contained logger keeps its own prefix and flags.
type MultiLogger struct {
	log     *log.Logger
	loggers []*log.Logger
	lock    sync.Mutex
}

// Write expects whole lines of text, which is what a log.Logger delivers.
func (l *MultiLogger) Write(b []byte) (int, error) {
	text := strings.TrimRight(string(b), "\n")
	l.lock.Lock()
	targets := append([]*log.Logger(nil), l.loggers...)
	l.lock.Unlock()

	for _, line := range strings.Split(text, "\n") {
		for _, logger := range targets {
			logger.Println(line)
		}
	}
	return len(b), nil
}

// AddLogger adds a destination.  Adding the same logger twice has no
// effect.
func (l *MultiLogger) AddLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, x := range l.loggers {
		if x == logger {
			return
		}
	}
	l.loggers = append(l.loggers, logger)
}

// DelLogger removes a destination.
func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, x := range l.loggers {
		if x == logger {
			l.loggers = append(l.loggers[:i:i], l.loggers[i+1:]...)
			return
		}
	}
}

// Len returns the number of destinations.
func (l *MultiLogger) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.loggers)
}

// Logger returns a logger that writes to every destination.
func (l *MultiLogger) Logger() *log.Logger {
	return l.log
}

// NewLogger returns a logger writing to every destination, with every
// line prefixed by prefix.
func (l *MultiLogger) NewLogger(prefix string) *log.Logger {
	return log.New(l, prefix, 0)
}

func NewMultiLogger() *MultiLogger {
	m := &MultiLogger{}
	m.log = log.New(m, "", 0)
	return m
}
