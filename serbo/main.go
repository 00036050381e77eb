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

// Command serbo runs and supervises game servers on this host.  Servers
// live in folders below a server root, and each runs a version found
// below a version root.
//
// The flags are
//
//	-c <file>   - configuration file, default $SERBO_CONFIG or
//	              serbo.yaml in the serbo directory
//	-ui         - full screen interface instead of the command console
//	-d          - run without a console, until signalled
//
// The console accepts commands such as
//
//	create <name> <version>     - make a new server
//	start <name>                - start a server
//	stop <name> [grace]         - stop a server
//	send <name> <text>          - type a line into the server console
//	log <name>                  - show recent server output
//	help                        - list every command
//
// On exit every server is stopped.
package main

import (
	"flag"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/config"
	"github.com/gdamore/serbo/schedule"
	"github.com/gdamore/serbo/serbo/ui"
	"github.com/gdamore/serbo/sqlstore"
)

var cfgFile string
var useUI bool
var daemon bool

// setupLogging returns the logger for messages, and the rotating file
// logger if one is configured.
func setupLogging(cfg config.LoggingConfig, quiet bool) (*log.Logger, *stdlog.Logger, io.Closer) {
	level, e := log.ParseLevel(cfg.Level)
	if e != nil {
		level = log.InfoLevel
	}
	var out io.Writer = os.Stderr
	if quiet {
		// the screen belongs to the user interface
		out = io.Discard
	}
	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "[2006-01-02 15:04:05]",
		Prefix:          "serbo",
		Level:           level,
	})
	log.SetDefault(logger)
	if e != nil {
		logger.Warn("Unknown log level, using info", "level", cfg.Level)
	}

	if cfg.File == "" {
		return logger, nil, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	return logger, stdlog.New(lj, "", stdlog.LstdFlags), lj
}

// autostart starts the named instances in parallel, "*" naming all of
// them.
func autostart(m *serbo.Manager, names []string) {
	for _, name := range names {
		if name == schedule.AllInstances {
			names = m.Names()
			break
		}
	}
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if e := m.Start(name); e != nil {
				log.Error("Autostart failed", "instance", name, "err", e)
			}
		}(name)
	}
	wg.Wait()
}

func main() {
	flag.StringVar(&cfgFile, "c", cfgFile, "configuration file")
	flag.BoolVar(&useUI, "ui", useUI, "full screen user interface")
	flag.BoolVar(&daemon, "d", daemon, "run without a console")
	flag.Parse()

	cfg, e := config.Load(cfgFile)
	if e != nil {
		log.Fatal("Failed to load configuration", "err", e)
	}

	logger, fileLog, closer := setupLogging(cfg.Logging, useUI)
	if closer != nil {
		defer closer.Close()
	}

	m := serbo.NewManager(cfg.ServerRoot, cfg.VersionRoot, cfg.JarName)
	m.SetLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel}))
	if e := cfg.Apply(m); e != nil {
		log.Fatal("Bad configuration", "err", e)
	}
	if fileLog != nil {
		m.AddLogger(fileLog)
		if cfg.Logging.Console {
			m.SetProperty(serbo.PropOutputLogger, fileLog)
		}
	}
	for _, dir := range []string{cfg.ServerRoot, cfg.VersionRoot} {
		if e := os.MkdirAll(dir, 0755); e != nil {
			log.Fatal("Cannot create directory", "dir", dir, "err", e)
		}
	}

	var store *sqlstore.Store
	if cfg.Database.Path != "" {
		if store, e = sqlstore.Open(cfg.Database.Path); e != nil {
			log.Fatal("Failed to open database", "path", cfg.Database.Path, "err", e)
		}
		m.SetStore(store)
		if e := m.Restore(); e != nil {
			log.Error("Failed to restore servers", "err", e)
		}
	}
	if e := cfg.ApplyPorts(m); e != nil {
		log.Error("Failed to assign ports", "err", e)
	}

	sched := schedule.New(m, logger.StandardLog())
	for _, s := range cfg.Schedules {
		if _, e := sched.Add(s.Entry()); e != nil {
			log.Error("Bad schedule", "spec", s.Spec, "err", e)
		}
	}
	sched.Start()

	log.Info("Serbo ready", "servers", cfg.ServerRoot, "versions", cfg.VersionRoot,
		"instances", len(m.Names()))
	go autostart(m, cfg.Autostart)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	front := make(chan error, 1)
	var app *ui.App
	switch {
	case useUI:
		app = newUI(m, fileLog)
		go func() { front <- app.Run() }()
	case daemon:
	default:
		go func() { front <- NewConsole(m, os.Stdout).Run(os.Stdin) }()
	}

	// Wait for the front end to finish, or a termination signal, and
	// shutdown cleanly either way.
	select {
	case e := <-front:
		if e != nil {
			log.Error("Console failed", "err", e)
		}
	case sig := <-sigs:
		log.Info("Shutting down", "signal", sig)
		if app != nil {
			app.Quit()
			<-front
		}
	}

	sched.Stop()
	if e := m.Shutdown(0); e != nil {
		log.Error("Some servers did not stop", "err", e)
	}
	if store != nil {
		store.Close()
	}
}
