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

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/serbo/util"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

func instanceStyle(info serbo.InstanceInfo) tcell.Style {
	switch {
	case util.Failed(info):
		return StyleError
	case info.State == serbo.Running:
		return StyleGood
	case info.State == serbo.Stopped:
		return StyleNormal
	}
	return StyleWarn
}

// MainPanel lists the instances, one per line, and lets the operator
// select one to act on.
type MainPanel struct {
	content  *views.CellView
	selected string // name of the selected instance, if any
	nfailed  int
	nrunning int
	nbusy    int
	nstopped int
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []serbo.InstanceInfo

	Panel
}

// mainModel provides the model for a CellArea.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, root string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle("Servers in " + root)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) selectedItem() (serbo.InstanceInfo, bool) {
	for _, item := range m.items {
		if item.Name == m.selected {
			return item, true
		}
	}
	return serbo.InstanceInfo{}, false
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	item, ok := m.selectedItem()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			m.App().ShowHelp()
			return true
		case tcell.KeyEnter:
			if ok {
				m.App().ShowInfo(item.Name)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				m.App().Quit()
				return true
			case 'H', 'h':
				m.App().ShowHelp()
				return true
			case 'I', 'i':
				if ok {
					m.App().ShowInfo(item.Name)
					return true
				}
			case 'L', 'l':
				if ok {
					m.App().ShowLog(item.Name)
				} else {
					m.App().ShowLog("")
				}
				return true
			default:
				if ok && m.instanceAction(ev.Rune(), item) {
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}

	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.items[y].Name == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	m := model.m
	return m.width, len(m.lines)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == "" {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.items[m.cury].Name
	} else {
		m.selected = ""
	}
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.  It runs on the application goroutine.
func (m *MainPanel) update() {

	m.items = m.App().GetItems()

	// preserve selected item, which may have moved
	if sel := m.selected; sel != "" {
		m.selected = ""
		for y, item := range m.items {
			if item.Name == sel {
				m.selected = sel
				m.cury = y
			}
		}
	}

	lines := make([]string, 0, len(m.items))
	styles := make([]tcell.Style, 0, len(m.items))

	m.nfailed = 0
	m.nrunning = 0
	m.nbusy = 0
	m.nstopped = 0

	m.height = 0
	m.width = 0

	for _, info := range m.items {
		pid := "-"
		if info.Pid != 0 {
			pid = fmt.Sprint(info.Pid)
		}
		line := fmt.Sprintf("%-20s %-10s %-9s %10s %7s %6s   %s",
			info.Name, info.Version, util.Status(info),
			util.FormatDuration(util.Since(info)), pid,
			util.Port(info), info.Reason)

		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++

		lines = append(lines, line)
		styles = append(styles, instanceStyle(info))
		switch {
		case util.Failed(info):
			m.nfailed++
		case info.State == serbo.Running:
			m.nrunning++
		case info.State == serbo.Stopped:
			m.nstopped++
		default:
			m.nbusy++
		}
	}

	m.lines = lines
	m.styles = styles

	if notice, ok := m.App().Notice(); notice != "" {
		m.SetStatus(notice)
		if ok {
			m.SetNormal()
		} else {
			m.SetError()
		}
	} else {
		m.SetStatus(fmt.Sprintf(
			"%6d Servers %6d Failed %6d Running %6d Busy %6d Stopped",
			len(m.items), m.nfailed, m.nrunning, m.nbusy, m.nstopped))

		if m.nfailed > 0 {
			m.SetError()
		} else if m.nbusy > 0 {
			m.SetWarn()
		} else if m.nrunning > 0 {
			m.SetGood()
		} else {
			m.SetNormal()
		}
	}

	words := []string{"[Q] Quit", "[H] Help", "[L] Log"}
	if item, ok := m.selectedItem(); ok {
		words = append(words, "[I] Info")
		words = instanceKeys(words, item)
	}
	m.SetKeys(words)
}
