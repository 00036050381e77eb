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

	cp "github.com/otiai10/copy"
)

// Provisioner prepares the server directory of a new instance.  It is
// called once, from Create, before the instance is registered.
type Provisioner interface {
	Provision(dir string, version string) error
}

// MkdirProvisioner only makes sure the directory exists.
type MkdirProvisioner struct{}

func (MkdirProvisioner) Provision(dir string, _ string) error {
	return os.MkdirAll(dir, 0755)
}

// CopyProvisioner seeds a new server directory with the contents of the
// version folder (server.properties, eula.txt, and so forth), unless the
// directory already exists, in which case it is used as is.  The jarfile
// itself is not copied; it is always launched from the version folder.
type CopyProvisioner struct {
	Versions Versions
	JarName  string
}

func (c CopyProvisioner) Provision(dir string, version string) error {
	if _, e := os.Stat(dir); e == nil {
		return nil
	}
	src, e := c.Versions.Dir(version)
	if e != nil {
		return e
	}
	jar := filepath.Join(src, c.JarName)
	opts := cp.Options{
		Skip: func(_ os.FileInfo, s, _ string) (bool, error) {
			return c.JarName != "" && s == jar, nil
		},
		Sync: true,
	}
	if e := cp.Copy(src, dir, opts); e != nil {
		os.RemoveAll(dir)
		return e
	}
	return nil
}
