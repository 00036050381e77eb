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

// Package serbo supervises game server processes (Minecraft and friends)
// running side by side on a single host.
//
// A Manager owns a set of named Instances.  Each Instance lives in its own
// directory below the Manager's server root, and launches the jarfile found
// in a version folder below the version root:
//
//	<server root>/<name>/                 working directory of the process
//	<version root>/<version>/<jar name>   what gets launched
//
// Instances can be started, stopped, and switched to another version while
// stopped.  While running, commands may be written to the server console
// (its standard input), and the console output (standard output and error)
// can be read one line at a time, either through the Instance's primary
// reader or through any number of independent Subscriptions.
//
// The Manager is safe for concurrent use.  Operations on different
// instances never wait on one another; operations on the same instance are
// serialized by that instance.
//
// Provisioning of server directories, validation of version folders, and
// the launch command are pluggable (see Provisioner, Versions and Launcher),
// so that callers can adapt the supervisor to their own on-disk layout.
package serbo
