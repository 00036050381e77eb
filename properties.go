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
	"regexp"
	"time"
)

// Property names.  Internal names will all start with an underscore.
// Note that there is no provision for property discovery.  Consumers
// wishing to use a property must know the property name and type.
type PropertyName string

const (
	PropLogger       PropertyName = "_Logger"       // *log.Logger, where messages go
	PropOutputLogger              = "_OutputLogger" // *log.Logger, copy of console output
	PropStopCommand               = "_StopCommand"  // string, "" sends SIGTERM
	PropStopTime                  = "_StopTime"     // time.Duration, grace period
	PropKillTime                  = "_KillTime"     // time.Duration, wait after SIGKILL
	PropStartTimeout              = "_StartTimeout" // time.Duration, wait for ready
	PropReadyPattern              = "_ReadyPattern" // *regexp.Regexp or string, nil = alive
	PropPort                      = "_Port"         // int, 0 = none
	PropRestart                   = "_Restart"      // bool, restart after a crash
	PropRateLimit                 = "_RateLimit"    // int, max restarts per period
	PropRatePeriod                = "_RatePeriod"   // time.Duration, period for RateLimit
	PropName                      = "_Name"         // string, read only
	PropDirectory                 = "_Directory"    // string, read only
	PropVersion                   = "_Version"      // string, read only (see SetVersion)
)

const (
	DefaultStopCommand  = "stop"
	DefaultStopTime     = time.Second * 10
	DefaultKillTime     = time.Second * 5
	DefaultStartTimeout = time.Minute * 2
	DefaultRateLimit    = 3
	DefaultRatePeriod   = time.Minute * 5
)

// DefaultReadyPattern matches the line a vanilla Minecraft server prints
// once it is accepting players.
var DefaultReadyPattern = regexp.MustCompile(`Done \([0-9.,]+m?s\)! For help, type`)

// policy is the tunable part of an Instance.
type policy struct {
	logger       *log.Logger
	outLogger    *log.Logger
	stopCmd      string
	stopTime     time.Duration
	killTime     time.Duration
	startTimeout time.Duration
	ready        *regexp.Regexp
	port         int
	restart      bool
	rateLimit    int
	ratePeriod   time.Duration
}

func defaultPolicy() policy {
	return policy{
		stopCmd:      DefaultStopCommand,
		stopTime:     DefaultStopTime,
		killTime:     DefaultKillTime,
		startTimeout: DefaultStartTimeout,
		ready:        DefaultReadyPattern,
		rateLimit:    DefaultRateLimit,
		ratePeriod:   DefaultRatePeriod,
	}
}

func (p *policy) set(n PropertyName, v interface{}) error {
	switch n {
	case PropName, PropDirectory, PropVersion:
		return ErrPropReadOnly
	case PropLogger:
		if v, ok := v.(*log.Logger); ok {
			p.logger = v
			return nil
		}
		return ErrBadPropType
	case PropOutputLogger:
		if v, ok := v.(*log.Logger); ok {
			p.outLogger = v
			return nil
		}
		return ErrBadPropType
	case PropStopCommand:
		if v, ok := v.(string); ok {
			p.stopCmd = v
			return nil
		}
		return ErrBadPropType
	case PropStopTime, PropKillTime, PropStartTimeout, PropRatePeriod:
		d, ok := v.(time.Duration)
		if !ok {
			return ErrBadPropType
		}
		if d < 0 {
			return ErrBadPropValue
		}
		switch n {
		case PropStopTime:
			p.stopTime = d
		case PropKillTime:
			p.killTime = d
		case PropStartTimeout:
			p.startTimeout = d
		case PropRatePeriod:
			p.ratePeriod = d
		}
		return nil
	case PropReadyPattern:
		switch v := v.(type) {
		case nil:
			p.ready = nil
		case *regexp.Regexp:
			p.ready = v
		case string:
			if v == "" {
				p.ready = nil
				return nil
			}
			re, e := regexp.Compile(v)
			if e != nil {
				return ErrBadPropValue
			}
			p.ready = re
		default:
			return ErrBadPropType
		}
		return nil
	case PropPort:
		if v, ok := v.(int); ok {
			if v < 0 || v > 65535 {
				return ErrBadPropValue
			}
			p.port = v
			return nil
		}
		return ErrBadPropType
	case PropRestart:
		if v, ok := v.(bool); ok {
			p.restart = v
			return nil
		}
		return ErrBadPropType
	case PropRateLimit:
		if v, ok := v.(int); ok {
			if v < 0 {
				return ErrBadPropValue
			}
			p.rateLimit = v
			return nil
		}
		return ErrBadPropType
	}
	return ErrBadPropName
}

func (p *policy) get(n PropertyName) (interface{}, error) {
	switch n {
	case PropLogger:
		return p.logger, nil
	case PropOutputLogger:
		return p.outLogger, nil
	case PropStopCommand:
		return p.stopCmd, nil
	case PropStopTime:
		return p.stopTime, nil
	case PropKillTime:
		return p.killTime, nil
	case PropStartTimeout:
		return p.startTimeout, nil
	case PropReadyPattern:
		return p.ready, nil
	case PropPort:
		return p.port, nil
	case PropRestart:
		return p.restart, nil
	case PropRateLimit:
		return p.rateLimit, nil
	case PropRatePeriod:
		return p.ratePeriod, nil
	}
	return nil, ErrBadPropName
}
