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

package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/serbo/serbo/util"
)

// InfoPanel shows the details of one instance.
type InfoPanel struct {
	text *views.TextArea
	name string // instance name
	ok   bool   // whether the instance was found

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	app := p.app
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				if p.ok {
					app.ShowLog(p.name)
					return true
				}
			default:
				if info, e := app.GetItem(p.name); e == nil &&
					p.instanceAction(ev.Rune(), info) {
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
	p.ok = false
}

// update must be called on the application goroutine.
func (p *InfoPanel) update() {
	words := []string{"[ESC] Main", "[H] Help"}
	p.SetTitle("Details for " + p.name)

	s, e := p.app.GetItem(p.name)
	if e != nil {
		p.ok = false
		p.SetStatus(fmt.Sprintf("No data: %v", e))
		p.SetError()
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}
	p.ok = true

	if notice, ok := p.app.Notice(); notice != "" {
		p.SetStatus(notice)
		if !ok {
			p.SetError()
		} else {
			p.SetCondition(s)
		}
	} else {
		p.SetStatus(s.Reason)
		p.SetCondition(s)
	}

	row := func(label string, v interface{}) string {
		return fmt.Sprintf("%13s %v", label+":", v)
	}
	lines := []string{
		row("Name", s.Name),
		row("Directory", s.Directory),
		row("Version", s.Version),
		row("Status", util.Status(s)),
		row("Since", s.Stamp.Format(time.RFC1123)),
		row("Uptime", util.FormatDuration(util.Since(s))),
		row("Detail", s.Reason),
		row("Port", util.Port(s)),
		row("Created", s.Created.Format(time.RFC1123)),
	}
	if s.Pid != 0 {
		lines = append(lines, row("Pid", s.Pid), row("Run", s.RunID))
	}
	if s.Err != nil {
		lines = append(lines, row("Error", s.Err))
	}
	p.text.SetLines(lines)

	words = append(words, "[L] Log")
	p.SetKeys(instanceKeys(words, s))
}
