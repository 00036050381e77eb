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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/serbo"
)

// Failed reports whether the instance stopped because of an error.
func Failed(info serbo.InstanceInfo) bool {
	return info.State == serbo.Stopped && info.Err != nil
}

func Status(info serbo.InstanceInfo) string {
	if Failed(info) {
		return "failed"
	}
	return info.State.String()
}

// Since is how long the instance has been in its current condition, to
// second resolution.
func Since(info serbo.InstanceInfo) time.Duration {
	d := time.Since(info.Stamp)
	return d - d%time.Second
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Port formats the port, or a dash if there is none.
func Port(info serbo.InstanceInfo) string {
	if info.Port == 0 {
		return "-"
	}
	return fmt.Sprint(info.Port)
}

type sorted []serbo.InstanceInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func rank(info serbo.InstanceInfo) int {
	switch {
	case Failed(info):
		return 0
	case info.State == serbo.Starting || info.State == serbo.Stopping:
		return 1
	case info.State == serbo.Running:
		return 2
	}
	return 3
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	// failed items at front, then the ones in transition
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra < rb
	}
	return a.Name < b.Name
}

func SortInstances(items []serbo.InstanceInfo) {
	sort.Sort(sorted(items))
}
