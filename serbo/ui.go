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

package main

import (
	stdlog "log"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/serbo/ui"
)

func newUI(m *serbo.Manager, logger *stdlog.Logger) *ui.App {
	app := ui.NewApp(m)
	app.SetLogger(logger)
	return app
}

/*
   Our screen has the following appearance:

    Servers in /var/lib/serbo/servers                               Serbo v1.0
       3 Servers      1 Failed      1 Running      0 Busy      1 Stopped
   ____________________________________________________________________________
   lobby                1.16.1     failed       0:02:11       -      -   Exited: exit status 1
   survival             1.17       running     26:10:32   41233  25566   Started
   creative             1.16.1     stopped      2:03:08       -      -   Stopped
   ...
   ____________________________________________________________________________
   [Q] Quit [H] Help [L] Log [I] Info [T] Stop [R] Restart
*/
