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

// State is the lifecycle state of an Instance.
//
//	            start             ready
//	+---------+ ----> +----------+ ----> +---------+
//	| Stopped |       | Starting |       | Running |
//	+---------+ <---- +----------+       +---------+
//	  ^    ^    exit       |              |     |
//	  |    +---------------|--------------+     | stop
//	  |                 exit    | stop          v
//	  |        exit             +-------> +----------+
//	  +---------------------------------- | Stopping |
//	                                      +----------+
//
// An Instance owns a process exactly when its state is not Stopped.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "invalid"
}

// event is something that moves an Instance between states.
type event int

const (
	evStart event = iota // start requested
	evReady              // process is up and answering
	evStop               // stop requested
	evExit               // process exit observed
)

func (ev event) String() string {
	switch ev {
	case evStart:
		return "start"
	case evReady:
		return "ready"
	case evStop:
		return "stop"
	case evExit:
		return "exit"
	}
	return "invalid"
}

// next returns the state reached by applying ev, or ErrInvalidState if
// the transition is not legal.  A stop while Starting aborts a launch that
// never became ready.  Stopping accepts a second stop so that an operator
// may retry after ErrKillFailed.
func (s State) next(ev event) (State, error) {
	switch s {
	case Stopped:
		if ev == evStart {
			return Starting, nil
		}
	case Starting:
		switch ev {
		case evReady:
			return Running, nil
		case evStop:
			return Stopping, nil
		case evExit:
			return Stopped, nil
		}
	case Running:
		switch ev {
		case evStop:
			return Stopping, nil
		case evExit:
			return Stopped, nil
		}
	case Stopping:
		switch ev {
		case evStop:
			return Stopping, nil
		case evExit:
			return Stopped, nil
		}
	}
	return s, ErrInvalidState
}
