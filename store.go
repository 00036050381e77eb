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
	"time"
)

// Record is what a Store keeps about an instance.  Run state is never
// stored; restored instances always begin Stopped.
type Record struct {
	Name    string
	Version string
	Created time.Time
}

// Store persists the set of instances across restarts of the Manager.
// The Manager writes through to it on Create, Delete, and version
// changes.  See the sqlstore package for an implementation.
type Store interface {
	Put(rec Record) error
	Delete(name string) error
	Records() ([]Record, error)
}
