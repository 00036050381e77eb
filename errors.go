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
	"errors"
	"fmt"
)

// Configuration errors.  These are for the caller to correct.
var (
	ErrNotFound        = errors.New("Instance not found")
	ErrNameExists      = errors.New("Instance already exists")
	ErrInvalidName     = errors.New("Invalid instance name")
	ErrVersionNotFound = errors.New("Version not found")
	ErrFilesystem      = errors.New("Server directory unavailable")
)

// Process errors.  The instance is always left Stopped after one of these,
// unless stated otherwise.
var (
	ErrSpawnFailed   = errors.New("Failed to launch process")
	ErrStartupFailed = errors.New("Server failed to start")
	ErrDirectoryBusy = errors.New("Directory in use by another process")
	ErrTimedOut      = errors.New("Timed out waiting for process exit")
	ErrCrashed       = errors.New("Server exited unexpectedly")
	// ErrKillFailed means the process outlived a forced kill.  The
	// instance stays in Stopping, and the operator has to step in.
	ErrKillFailed = errors.New("Process did not exit after kill")
)

// State errors.  These never change the state of the instance.
var (
	ErrNotRunning         = errors.New("Instance is not running")
	ErrInvalidState       = errors.New("Operation not valid in current state")
	ErrInstanceNotStopped = errors.New("Instance is not stopped")
	ErrAlreadySubscribed  = errors.New("Output already has an active reader")
	ErrOutputOverrun      = errors.New("Output reader fell behind")
)

var (
	ErrBadPropType  = errors.New("Bad property type")
	ErrBadPropName  = errors.New("Bad property name")
	ErrBadPropValue = errors.New("Bad property value")
	ErrPropReadOnly = errors.New("Property not changeable")
	ErrRateLimited  = errors.New("Restarting too quickly")
)

// Error records the instance and operation that failed, along with the
// cause.  Causes are wrapped, so errors.Is works against both the sentinel
// errors above and any underlying operating system error.
type Error struct {
	Name string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(name, op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) && oe.Name == name {
		return err
	}
	return &Error{Name: name, Op: op, Err: err}
}

// causeError joins a sentinel with the error that triggered it.
func causeError(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
