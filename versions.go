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
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Versions resolves a version name to the things needed to launch it.
// Implementations are expected to check existence at the time of the
// call, as folders may come and go underneath a running Manager.
type Versions interface {
	// Dir returns the folder holding the version.
	Dir(version string) (string, error)

	// Jar returns the path of the jarfile to launch for the version.
	// It fails with ErrVersionNotFound if there is no such file.
	Jar(version string) (string, error)
}

// VersionDir is the usual layout: one folder per version below Root, each
// holding a jarfile called JarName.
type VersionDir struct {
	Root    string
	JarName string
}

func validVersion(version string) bool {
	if version == "" || version == "." || version == ".." {
		return false
	}
	return !strings.ContainsAny(version, `/\`)
}

func (v VersionDir) Dir(version string) (string, error) {
	if !validVersion(version) {
		return "", ErrVersionNotFound
	}
	dir := filepath.Join(v.Root, version)
	if fi, e := os.Stat(dir); e != nil || !fi.IsDir() {
		return "", ErrVersionNotFound
	}
	return dir, nil
}

func (v VersionDir) Jar(version string) (string, error) {
	dir, e := v.Dir(version)
	if e != nil {
		return "", e
	}
	jar := filepath.Join(dir, v.JarName)
	if fi, e := os.Stat(jar); e != nil || !fi.Mode().IsRegular() {
		return "", ErrVersionNotFound
	}
	return jar, nil
}

// List returns the names of the versions that have a jarfile, sorted.
func (v VersionDir) List() ([]string, error) {
	ents, e := os.ReadDir(v.Root)
	if e != nil {
		return nil, e
	}
	names := make([]string, 0, len(ents))
	for _, ent := range ents {
		if !ent.IsDir() {
			continue
		}
		if _, e := v.Jar(ent.Name()); e == nil {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
