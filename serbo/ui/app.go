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

// Package ui is a full screen operator console for a serbo.Manager, built
// on tcell views.
package ui

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/serbo/util"
)

const noticeTime = time.Second * 5

// logSource is either the Manager (event log) or an Instance (console).
type logSource interface {
	GetLog(last int64) ([]serbo.LogRecord, int64)
	WatchLog(last int64, expire time.Duration) int64
}

type App struct {
	app      *views.Application
	view     views.View
	panel    views.Widget
	info     *InfoPanel
	help     *HelpPanel
	log      *LogPanel
	main     *MainPanel
	mgr      *serbo.Manager
	logger   *log.Logger
	items    []serbo.InstanceInfo
	logName  string
	logRecs  []serbo.LogRecord
	logErr   error
	logStop  chan struct{}
	notice   string
	noticeOK bool
	noticeAt time.Time
	grace    time.Duration
	done     chan struct{}

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.show(a.info)
}

// ShowLog shows the console of the named instance, or the Manager's event
// log if name is empty.
func (a *App) ShowLog(name string) {
	if a.logStop != nil {
		close(a.logStop)
	}
	stop := make(chan struct{})
	a.logRecs = nil
	a.logErr = nil
	a.logName = name
	a.logStop = stop
	a.log.SetName(name)

	var src logSource = a.mgr
	if name != "" {
		inst, e := a.mgr.Get(name)
		if e != nil {
			a.logErr = e
			a.show(a.log)
			return
		}
		src = inst
	}
	go a.refreshLog(stop, name, src)

	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

// do runs a blocking operation in the background, and reports how it went.
func (a *App) do(what, name string, fn func() error) {
	a.setNotice(fmt.Sprintf("%s %s ...", what, name), true)
	go func() {
		e := fn()
		a.app.PostFunc(func() {
			if e != nil {
				a.setNotice(e.Error(), false)
			} else {
				a.setNotice(fmt.Sprintf("%s %s: done", what, name), true)
			}
			a.app.Update()
		})
	}()
}

func (a *App) setNotice(text string, ok bool) {
	a.notice = text
	a.noticeOK = ok
	a.noticeAt = time.Now()
	if text != "" {
		a.Logf("%s", text)
	}
}

// Notice returns the outcome of the last operation, for a few seconds
// after it completes.
func (a *App) Notice() (string, bool) {
	if time.Since(a.noticeAt) > noticeTime {
		return "", true
	}
	return a.notice, a.noticeOK
}

func (a *App) StartInstance(name string) {
	a.do("Starting", name, func() error { return a.mgr.Start(name) })
}

func (a *App) StopInstance(name string) {
	a.do("Stopping", name, func() error { return a.mgr.Stop(name, a.grace) })
}

func (a *App) RestartInstance(name string) {
	a.do("Restarting", name, func() error { return a.mgr.Restart(name, a.grace) })
}

func (a *App) SendCommand(name, text string) {
	if e := a.mgr.SendCommand(name, text); e != nil {
		a.setNotice(e.Error(), false)
	} else {
		a.setNotice("", true)
	}
}

func (a *App) Quit() {
	/* This just posts the quit event. */
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

// SetGrace sets the grace period given to servers stopped from the UI.
func (a *App) SetGrace(d time.Duration) {
	a.grace = d
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) Manager() *serbo.Manager {
	return a.mgr
}

func (a *App) GetAppName() string {
	return "Serbo v1.0"
}

func NewApp(m *serbo.Manager) *App {

	app := &App{}
	app.app = &views.Application{}
	app.mgr = m
	app.done = make(chan struct{})
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, m.ServerRoot())
	app.panel = app.main

	go app.refresh()
	return app
}

// refresh keeps the app items current.
func (a *App) refresh() {
	serial := int64(0)
	for {
		select {
		case <-a.done:
			return
		default:
		}
		items := a.mgr.List()
		util.SortInstances(items)

		a.app.PostFunc(func() {
			a.items = items
			a.app.Update()
		})
		// wake at least once a second, for the uptime column
		serial = a.mgr.WatchSerial(serial, time.Second)
	}
}

func (a *App) refreshLog(stop chan struct{}, name string, src logSource) {
	for {
		recs, last := src.GetLog(0)
		a.app.PostFunc(func() {
			if a.logStop == stop {
				a.logRecs = recs
				a.app.Update()
			}
		})
		for {
			select {
			case <-stop:
				return
			case <-a.done:
				return
			default:
			}
			if n := src.WatchLog(last, time.Second); n != last {
				break
			}
		}
	}
}

func (a *App) GetItems() []serbo.InstanceInfo {
	return a.items
}

func (a *App) GetItem(name string) (serbo.InstanceInfo, error) {
	for _, i := range a.items {
		if i.Name == name {
			return i, nil
		}
	}
	return serbo.InstanceInfo{}, errors.New("Instance not found")
}

func (a *App) GetLog(name string) ([]serbo.LogRecord, error) {
	if a.logName == name {
		return a.logRecs, a.logErr
	}
	return nil, nil
}

// Run shows the UI until the user quits.
func (a *App) Run() error {
	a.Logf("Starting up user interface")
	a.items = a.mgr.List()
	util.SortInstances(a.items)
	a.app.SetRootWidget(a)
	a.Logf("Starting app loop")
	defer close(a.done)
	return a.app.Run()
}
