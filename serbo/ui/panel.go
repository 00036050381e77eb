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
	"sync"

	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/serbo/util"
)

// Panel wraps views.Panel with the bars every screen has: a title bar,
// a status bar that changes color with the condition of what is shown,
// and a key bar listing the keys that do something.
type Panel struct {
	tb   *TitleBar
	sb   *StatusBar
	kb   *KeyBar
	once sync.Once
	app  *App

	views.Panel
}

func (p *Panel) SetTitle(title string) {
	p.tb.SetCenter(title)
}

func (p *Panel) SetKeys(words []string) {
	p.kb.SetKeys(words)
}

func (p *Panel) SetStatus(status string) {
	p.sb.SetText(status)
}

func (p *Panel) SetGood() {
	p.sb.SetGood()
}

func (p *Panel) SetNormal() {
	p.sb.SetNormal()
}

func (p *Panel) SetWarn() {
	p.sb.SetWarn()
}

func (p *Panel) SetError() {
	p.sb.SetError()
}

// SetCondition colors the status bar for the instance.
func (p *Panel) SetCondition(info serbo.InstanceInfo) {
	switch {
	case util.Failed(info):
		p.SetError()
	case info.State == serbo.Running:
		p.SetGood()
	case info.State == serbo.Stopped:
		p.SetNormal()
	default:
		p.SetWarn()
	}
}

// instanceKeys lists the lifecycle keys that apply to the instance.
func instanceKeys(words []string, info serbo.InstanceInfo) []string {
	switch info.State {
	case serbo.Stopped:
		words = append(words, "[S] Start")
	case serbo.Running:
		words = append(words, "[T] Stop", "[R] Restart")
	case serbo.Starting:
		words = append(words, "[T] Stop")
	}
	return words
}

// instanceAction handles the lifecycle keys for the instance, returning
// true if the key was used.
func (p *Panel) instanceAction(r rune, info serbo.InstanceInfo) bool {
	switch r {
	case 'S', 's':
		if info.State == serbo.Stopped {
			p.app.StartInstance(info.Name)
			return true
		}
	case 'T', 't':
		if info.State == serbo.Running || info.State == serbo.Starting {
			p.app.StopInstance(info.Name)
			return true
		}
	case 'R', 'r':
		if info.State == serbo.Running {
			p.app.RestartInstance(info.Name)
			return true
		}
	}
	return false
}

func (p *Panel) Init(app *App) {
	p.once.Do(func() {
		p.app = app

		p.tb = NewTitleBar()
		p.tb.SetRight(app.GetAppName())
		p.tb.SetCenter(" ")

		p.kb = NewKeyBar()

		p.sb = NewStatusBar()

		p.Panel.SetTitle(p.tb)
		p.Panel.SetMenu(p.sb)
		p.Panel.SetStatus(p.kb)
	})
}

func (p *Panel) App() *App {
	return p.app
}
