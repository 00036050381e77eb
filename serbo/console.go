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
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/serbo/util"
)

// errQuit ends the console.
var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	min   int // minimum number of arguments
	fn    func(c *Console, args []string) error
}

var commands map[string]command

func init() {
	// set here, since help refers back to the table
	commands = map[string]command{
		"help":     {"help", "show this list", 0, (*Console).help},
		"list":     {"list", "show all servers", 0, (*Console).list},
		"versions": {"versions", "show the versions available", 0, (*Console).versions},
		"info":     {"info NAME", "show details of a server", 1, (*Console).info},
		"create":   {"create NAME VERSION", "make a new server", 2, (*Console).create},
		"delete":   {"delete NAME", "forget a stopped server, keeping its files", 1, (*Console).delete},
		"purge":    {"purge NAME", "forget a stopped server, and remove its files", 1, (*Console).purge},
		"start":    {"start NAME", "start a server", 1, (*Console).start},
		"stop":     {"stop NAME [GRACE]", "stop a server", 1, (*Console).stop},
		"restart":  {"restart NAME [GRACE]", "stop a server, and start it again", 1, (*Console).restart},
		"version":  {"version NAME VERSION", "change the version of a stopped server", 2, (*Console).version},
		"switch":   {"switch NAME VERSION [GRACE]", "restart a server under another version", 2, (*Console).switchVersion},
		"port":     {"port NAME PORT", "set the port used from the next start (0 for none)", 2, (*Console).port},
		"send":     {"send NAME TEXT...", "send a line to the server console", 2, (*Console).send},
		"log":      {"log [NAME] [COUNT]", "show recent console lines, or events", 0, (*Console).log},
		"quit":     {"quit", "stop all servers and exit", 0, (*Console).quit},
	}
}

// Console is a line oriented operator interface.  Each line is a command
// followed by its arguments, separated by white space.
type Console struct {
	m   *serbo.Manager
	out io.Writer
}

func NewConsole(m *serbo.Manager, out io.Writer) *Console {
	return &Console{m: m, out: out}
}

func (c *Console) printf(format string, v ...interface{}) {
	fmt.Fprintf(c.out, format, v...)
}

// Run executes the commands read from in until it is exhausted, or a quit
// command is seen.  Failed commands are reported, and do not end the run.
func (c *Console) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	c.printf("serbo> ")
	for scanner.Scan() {
		if e := c.Exec(scanner.Text()); e != nil {
			if e == errQuit {
				return nil
			}
			c.printf("Error: %v\n", e)
		}
		c.printf("serbo> ")
	}
	c.printf("\n")
	return scanner.Err()
}

// Exec runs a single command line.
func (c *Console) Exec(line string) error {
	words := strings.Fields(line)
	if len(words) == 0 || strings.HasPrefix(words[0], "#") {
		return nil
	}
	name, args := strings.ToLower(words[0]), words[1:]
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", words[0])
	}
	if len(args) < cmd.min {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.fn(c, args)
}

// graceArg parses an optional grace period at args[n].  Zero means the
// stop time of the instance.
func graceArg(args []string, n int) (time.Duration, error) {
	if len(args) <= n {
		return 0, nil
	}
	if secs, e := strconv.Atoi(args[n]); e == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, e := time.ParseDuration(args[n])
	if e != nil {
		return 0, fmt.Errorf("bad grace period %q", args[n])
	}
	return d, nil
}

func (c *Console) help(args []string) error {
	names := lo.Keys(commands)
	sort.Strings(names)
	w := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\t%s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(w, "  \t\n  GRACE is seconds, or a duration such as 30s or 2m.\t\n")
	return w.Flush()
}

func (c *Console) list(args []string) error {
	items := c.m.List()
	if len(items) == 0 {
		c.printf("No servers.\n")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tVERSION\tSTATUS\tSINCE\tPID\tPORT\tDETAIL\n")
	for _, info := range items {
		pid := "-"
		if info.Pid != 0 {
			pid = strconv.Itoa(info.Pid)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Name, info.Version, util.Status(info),
			util.FormatDuration(util.Since(info)), pid,
			util.Port(info), info.Reason)
	}
	return w.Flush()
}

func (c *Console) versions(args []string) error {
	vers, e := c.m.Versions()
	if e != nil {
		return e
	}
	if len(vers) == 0 {
		c.printf("No versions in %s.\n", c.m.VersionRoot())
	}
	for _, v := range vers {
		c.printf("%s\n", v)
	}
	return nil
}

func (c *Console) info(args []string) error {
	inst, e := c.m.Get(args[0])
	if e != nil {
		return e
	}
	s := inst.Info()
	w := tabwriter.NewWriter(c.out, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", s.Name)
	fmt.Fprintf(w, "Directory:\t%s\n", s.Directory)
	fmt.Fprintf(w, "Version:\t%s\n", s.Version)
	fmt.Fprintf(w, "Status:\t%s\n", util.Status(s))
	fmt.Fprintf(w, "Since:\t%v\n", s.Stamp.Format(time.RFC1123))
	fmt.Fprintf(w, "Detail:\t%s\n", s.Reason)
	fmt.Fprintf(w, "Port:\t%s\n", util.Port(s))
	fmt.Fprintf(w, "Created:\t%v\n", s.Created.Format(time.RFC1123))
	if s.Pid != 0 {
		fmt.Fprintf(w, "Pid:\t%d\n", s.Pid)
		fmt.Fprintf(w, "Run:\t%s\n", s.RunID)
	}
	if s.Err != nil {
		fmt.Fprintf(w, "Error:\t%v\n", s.Err)
	}
	return w.Flush()
}

func (c *Console) create(args []string) error {
	inst, e := c.m.Create(args[0], args[1])
	if e != nil {
		return e
	}
	c.printf("Created %s in %s\n", inst.Name(), inst.Directory())
	return nil
}

func (c *Console) delete(args []string) error {
	return c.m.Delete(args[0])
}

func (c *Console) purge(args []string) error {
	return c.m.Purge(args[0])
}

func (c *Console) start(args []string) error {
	if e := c.m.Start(args[0]); e != nil {
		return e
	}
	c.printf("Started %s\n", args[0])
	return nil
}

func (c *Console) stop(args []string) error {
	grace, e := graceArg(args, 1)
	if e != nil {
		return e
	}
	return c.m.Stop(args[0], grace)
}

func (c *Console) restart(args []string) error {
	grace, e := graceArg(args, 1)
	if e != nil {
		return e
	}
	if e := c.m.Restart(args[0], grace); e != nil {
		return e
	}
	c.printf("Restarted %s\n", args[0])
	return nil
}

func (c *Console) version(args []string) error {
	return c.m.ChangeVersion(args[0], args[1])
}

func (c *Console) switchVersion(args []string) error {
	grace, e := graceArg(args, 2)
	if e != nil {
		return e
	}
	return c.m.Switch(args[0], args[1], grace)
}

func (c *Console) port(args []string) error {
	inst, e := c.m.Get(args[0])
	if e != nil {
		return e
	}
	port, e := strconv.Atoi(args[1])
	if e != nil {
		return fmt.Errorf("bad port %q", args[1])
	}
	return inst.SetProperty(serbo.PropPort, port)
}

func (c *Console) send(args []string) error {
	return c.m.SendCommand(args[0], strings.Join(args[1:], " "))
}

// log shows the last count lines of a console, or of the event log.
func (c *Console) log(args []string) error {
	count := 20
	var recs []serbo.LogRecord
	if len(args) > 0 {
		if n, e := strconv.Atoi(args[len(args)-1]); e == nil && n > 0 {
			count = n
			args = args[:len(args)-1]
		}
	}
	if len(args) == 0 {
		recs, _ = c.m.GetLog(0)
	} else {
		inst, e := c.m.Get(args[0])
		if e != nil {
			return e
		}
		recs, _ = inst.GetLog(0)
	}
	if len(recs) > count {
		recs = recs[len(recs)-count:]
	}
	for _, r := range recs {
		c.printf("%s %s\n", r.Time.Format(time.StampMilli), r.Text)
	}
	return nil
}

func (c *Console) quit(args []string) error {
	return errQuit
}
