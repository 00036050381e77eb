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
	"github.com/samber/lo"

	"github.com/gdamore/serbo"
)

// LogPanel shows the console of an instance, or the event log of the
// Manager.  On a console, ':' opens a prompt for a command to send to
// the server.
type LogPanel struct {
	text    *views.TextArea
	name    string // instance name, empty for the event log
	last    int64  // newest record shown
	editing bool
	input   []rune

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

// handleInput deals with keys while the command prompt is open.
func (p *LogPanel) handleInput(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEsc:
		p.editing = false
		p.input = nil
	case tcell.KeyEnter:
		if len(p.input) > 0 {
			p.app.SendCommand(p.name, string(p.input))
		}
		p.editing = false
		p.input = nil
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(p.input) > 0 {
			p.input = p.input[:len(p.input)-1]
		}
	case tcell.KeyRune:
		p.input = append(p.input, ev.Rune())
	default:
		return false
	}
	return true
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	app := p.app
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if p.editing {
			return p.handleInput(ev)
		}
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
			case 'I', 'i':
				if p.name != "" {
					app.ShowInfo(p.name)
					return true
				}
			case ':':
				if info, e := app.GetItem(p.name); e == nil && info.State == serbo.Running {
					p.editing = true
					p.input = nil
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

func (p *LogPanel) SetName(name string) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.name = name
	p.last = 0
	p.editing = false
	p.input = nil
}

// update must be called on the application goroutine.
func (p *LogPanel) update() {
	words := []string{"[ESC] Main", "[H] Help"}

	if p.name == "" {
		p.SetTitle("Event Log")
	} else {
		p.SetTitle("Console of " + p.name)
	}

	recs, err := p.app.GetLog(p.name)
	info, e := p.app.GetItem(p.name)
	if p.name != "" && err == nil && e != nil {
		err = e
	}
	if err != nil {
		p.SetStatus(fmt.Sprintf("No data: %v", err))
		p.SetError()
		p.SetKeys(words)
		return
	}

	lines := lo.Map(recs, func(r serbo.LogRecord, _ int) string {
		return fmt.Sprintf("%s %s", r.Time.Format(time.StampMilli), r.Text)
	})
	p.text.SetLines(lines)
	if n := len(recs); n > 0 && recs[n-1].Id != p.last {
		// follow the tail
		p.last = recs[n-1].Id
		p.text.MakeVisible(0, n-1)
	}

	switch {
	case p.editing:
		p.SetStatus("> " + string(p.input))
		p.SetNormal()
		p.SetKeys([]string{"[ENTER] Send", "[ESC] Cancel"})
		return
	case p.name == "":
		p.SetStatus(fmt.Sprintf("%d events", len(recs)))
		p.SetNormal()
	default:
		if notice, ok := p.app.Notice(); notice != "" && !ok {
			p.SetStatus(notice)
			p.SetError()
		} else {
			p.SetStatus(info.Reason)
			p.SetCondition(info)
		}
		words = append(words, "[I] Info")
		if info.State == serbo.Running {
			words = append(words, "[:] Command")
		}
		words = instanceKeys(words, info)
	}
	p.SetKeys(words)
}
