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
	"errors"
	"strconv"
	"strings"
)

// LaunchSpec describes one launch of an Instance.
type LaunchSpec struct {
	Name    string // instance name
	Version string // version being launched
	Jar     string // path to the jarfile
	Dir     string // working directory
	Port    int    // 0 if the instance has no port assigned
}

// Launcher turns a LaunchSpec into a command line.  The Instance calls
// it for every start, so the command may change between runs (for
// example after SetVersion).
type Launcher interface {
	Command(spec LaunchSpec) (path string, args []string, err error)
}

// TemplateLauncher builds the command line from an argv template.  The
// following placeholders are replaced in every word:
//
//	{jar}      path of the jarfile
//	{dir}      working directory
//	{name}     instance name
//	{version}  version name
//	{port}     the port, or nothing
//
// Words that become empty after replacement, and the word before a lone
// {port} when no port is set (for example "--port"), are dropped.
type TemplateLauncher struct {
	Argv []string
}

// NewTemplateLauncher returns a TemplateLauncher for the given argv.
func NewTemplateLauncher(argv ...string) *TemplateLauncher {
	return &TemplateLauncher{Argv: append([]string(nil), argv...)}
}

// DefaultLauncher runs the jarfile with a system java, one gigabyte of
// heap, and no GUI.
func DefaultLauncher() *TemplateLauncher {
	return NewTemplateLauncher("java", "-Xmx1024M", "-Xms1024M",
		"-jar", "{jar}", "nogui", "--port", "{port}")
}

func (t *TemplateLauncher) Command(spec LaunchSpec) (string, []string, error) {
	if len(t.Argv) == 0 {
		return "", nil, errors.New("Empty launch command")
	}
	port := ""
	if spec.Port > 0 {
		port = strconv.Itoa(spec.Port)
	}
	r := strings.NewReplacer(
		"{jar}", spec.Jar,
		"{dir}", spec.Dir,
		"{name}", spec.Name,
		"{version}", spec.Version,
		"{port}", port)

	argv := make([]string, 0, len(t.Argv))
	for i, w := range t.Argv {
		if w == "{port}" && port == "" {
			// drop a preceding flag along with the missing value
			if i > 0 && len(argv) > 0 &&
				strings.HasPrefix(t.Argv[i-1], "-") &&
				argv[len(argv)-1] == t.Argv[i-1] {
				argv = argv[:len(argv)-1]
			}
			continue
		}
		if w = r.Replace(w); w != "" {
			argv = append(argv, w)
		}
	}
	if len(argv) == 0 {
		return "", nil, errors.New("Empty launch command")
	}
	return argv[0], argv[1:], nil
}
