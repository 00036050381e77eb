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
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Manager owns the instances of one host.  All of its methods are safe for
// concurrent use.  Operations on different instances proceed in parallel;
// the Manager never holds a lock of its own while an instance operation
// blocks.
type Manager struct {
	serverRoot  string
	versionRoot string
	jarName     string
	versions    Versions
	launcher    Launcher
	prov        Provisioner
	store       Store
	reg         *registry
	defaults    policy
	logger      *log.Logger
	log         *Log
	mlog        *MultiLogger
	serial      int64
	listSerial  int64
	createTime  time.Time
	updateTime  time.Time
	mx          sync.Mutex
	cvs         map[*sync.Cond]bool
}

type ManagerInfo struct {
	ServerRoot  string
	VersionRoot string
	JarName     string
	Instances   int
	Serial      int64
	UpdateTime  time.Time
	CreateTime  time.Time
}

func (m *Manager) lock() {
	m.mx.Lock()
}

func (m *Manager) unlock() {
	m.mx.Unlock()
}

func (m *Manager) wakeUp() {
	// NB: If the lock is not held here, then there is a risk
	// that the woken goroutines won't get see the updated
	// serial number!!
	for cv := range m.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers.  It returns
// the new serial number, so that it can be stored in instances.
// Call with lock held.
func (m *Manager) bumpSerial() int64 {
	m.updateTime = time.Now()
	m.serial++
	rv := m.serial
	m.wakeUp()
	return rv
}

// watchSerial monitors for a change in a specific serial number.  It returns
// the new serial number when it changes.  If the serial number has not
// changed in the given duration then the old value is returned.  A poll
// can be done by supplying 0 for the expiration.
func (m *Manager) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&m.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			m.lock()
			expired = true
			cv.Broadcast()
			m.unlock()
		})
	} else {
		expired = true
	}

	m.lock()
	m.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(m.cvs, cv)
	m.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// WatchSerial monitors for a change in the global serial number.
func (m *Manager) WatchSerial(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.serial, expire)
}

// WatchInstances monitors for a change in the list of instances.
func (m *Manager) WatchInstances(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.listSerial, expire)
}

// Serial returns the global serial number.  This is incremented
// anytime an instance changes state.
func (m *Manager) Serial() int64 {
	m.lock()
	rv := m.serial
	m.unlock()
	return rv
}

// GetInfo returns top-level information about the Manager.
func (m *Manager) GetInfo() *ManagerInfo {
	n := m.reg.len()
	m.lock()
	i := &ManagerInfo{
		ServerRoot:  m.serverRoot,
		VersionRoot: m.versionRoot,
		JarName:     m.jarName,
		Instances:   n,
		Serial:      m.serial,
		CreateTime:  m.createTime,
		UpdateTime:  m.updateTime,
	}
	m.unlock()
	return i
}

func (m *Manager) ServerRoot() string {
	return m.serverRoot
}

func (m *Manager) VersionRoot() string {
	return m.versionRoot
}

// instanceChanged is the notify hook of every instance.
func (m *Manager) instanceChanged(i *Instance) {
	m.lock()
	sn := m.bumpSerial()
	m.unlock()
	i.lock()
	i.serial = sn
	i.unlock()
}

// listChanged notes an addition or removal.
func (m *Manager) listChanged() {
	m.lock()
	m.listSerial = m.bumpSerial()
	m.unlock()
}

// DefaultRoot returns the directory under which serbo keeps its data when
// nothing else has been configured.  The SERBODIR environment variable
// overrides it.
func DefaultRoot() string {
	base := os.Getenv("SERBODIR")
	if base != "" {
		return base
	}
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("USERPROFILE")
		if base == "" {
			base = "C:\\"
		}
	default:
		if os.Geteuid() == 0 {
			base = "/var/lib"
		} else {
			base = os.Getenv("HOME")
		}
		if base == "" {
			base = "."
		}
	}
	return filepath.Join(base, "serbo")
}

// SetLogger is used to establish a logger.  It overrides the default, so it
// shouldn't be used unless you want to control all logging.
func (m *Manager) SetLogger(l *log.Logger) {
	m.lock()
	old := m.logger
	m.logger = l
	m.unlock()
	if old != nil {
		m.mlog.DelLogger(old)
	}
	m.mlog.AddLogger(l)
}

// SetLogWriter sends all messages to w, in place of the default logger.
func (m *Manager) SetLogWriter(w io.Writer) {
	m.SetLogger(log.New(w, "", log.LstdFlags))
}

// AddLogger adds a destination for messages, alongside the existing ones.
func (m *Manager) AddLogger(l *log.Logger) {
	m.mlog.AddLogger(l)
}

func (m *Manager) logf(format string, v ...interface{}) {
	m.mlog.Logger().Printf(format, v...)
}

// SetLauncher sets how jarfiles are launched.  It affects later starts of
// every instance.
func (m *Manager) SetLauncher(l Launcher) {
	m.lock()
	m.launcher = l
	m.unlock()
}

func (m *Manager) SetProvisioner(p Provisioner) {
	m.lock()
	m.prov = p
	m.unlock()
}

// SetVersions replaces the default VersionDir.  It should be called before
// any instances are created.
func (m *Manager) SetVersions(v Versions) {
	m.lock()
	m.versions = v
	m.unlock()
}

// SetStore sets where instances are persisted.  Use Restore to load what
// it already holds.
func (m *Manager) SetStore(s Store) {
	m.lock()
	m.store = s
	m.unlock()
}

// SetProperty sets a default property.  It is applied to instances created
// (or restored) afterwards; existing instances are unaffected.
func (m *Manager) SetProperty(n PropertyName, v interface{}) error {
	m.lock()
	defer m.unlock()
	return m.defaults.set(n, v)
}

func (m *Manager) Property(n PropertyName) (interface{}, error) {
	m.lock()
	defer m.unlock()
	return m.defaults.get(n)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidName reports whether name may be used for an instance.  Names are
// used as directory names, so they are restricted to letters, digits, dots,
// dashes and underscores, and may not start with punctuation.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

func (m *Manager) newInstance(name, version string) *Instance {
	m.lock()
	inst := newInstance(name, filepath.Join(m.serverRoot, name), version,
		m.versions, m.launcher)
	inst.pol = m.defaults
	m.unlock()

	inst.notify = m.instanceChanged
	inst.addLogger(m.mlog.Logger())
	if inst.pol.logger != nil {
		inst.addLogger(inst.pol.logger)
	}
	return inst
}

func (m *Manager) persist(inst *Instance) error {
	m.lock()
	store := m.store
	m.unlock()
	if store == nil {
		return nil
	}
	info := inst.Info()
	return store.Put(Record{
		Name:    info.Name,
		Version: info.Version,
		Created: info.Created,
	})
}

// Create makes a new instance, Stopped, in server_root/name.  The directory
// is made by the Provisioner if it does not already exist, and must exist
// afterwards.
func (m *Manager) Create(name, version string) (*Instance, error) {
	if !ValidName(name) {
		return nil, opError(name, "create", ErrInvalidName)
	}
	if m.reg.has(name) {
		return nil, opError(name, "create", ErrNameExists)
	}

	m.lock()
	vers := m.versions
	prov := m.prov
	dir := filepath.Join(m.serverRoot, name)
	m.unlock()

	if _, e := vers.Jar(version); e != nil {
		return nil, opError(name, "create", e)
	}
	if e := prov.Provision(dir, version); e != nil {
		return nil, opError(name, "create", causeError(ErrFilesystem, e))
	}
	if fi, e := os.Stat(dir); e != nil {
		return nil, opError(name, "create", causeError(ErrFilesystem, e))
	} else if !fi.IsDir() {
		return nil, opError(name, "create", ErrFilesystem)
	}

	inst := m.newInstance(name, version)
	if e := m.reg.insert(name, inst); e != nil {
		return nil, opError(name, "create", e)
	}
	if e := m.persist(inst); e != nil {
		m.reg.remove(name)
		return nil, opError(name, "create", e)
	}
	m.listChanged()
	m.logf("Created instance %s (version %s) in %s", name, version, dir)
	return inst, nil
}

// Delete removes a Stopped instance.  Its directory is left alone; use
// Purge to remove that too.  If the Store fails to forget the instance,
// the error is returned, but the instance is gone from the Manager
// regardless; the record reappears at the next Restore.
func (m *Manager) Delete(name string) error {
	_, e := m.delete(name)
	return e
}

// delete returns the instance whenever it was removed, even if the Store
// failed.
func (m *Manager) delete(name string) (*Instance, error) {
	inst, e := m.reg.remove(name)
	if e != nil {
		return nil, opError(name, "delete", e)
	}
	m.lock()
	store := m.store
	m.unlock()
	m.listChanged()
	m.logf("Deleted instance %s", name)
	if store != nil {
		if e := store.Delete(name); e != nil {
			m.logf("Failed to forget instance %s: %v", name, e)
			return inst, opError(name, "delete", e)
		}
	}
	return inst, nil
}

// Purge deletes the instance, and then removes its directory.  The
// directory is removed even if the Store failed to forget the instance.
func (m *Manager) Purge(name string) error {
	inst, e := m.delete(name)
	if inst == nil {
		return e
	}
	if re := os.RemoveAll(inst.Directory()); re != nil {
		return errors.Join(e, opError(name, "purge", causeError(ErrFilesystem, re)))
	}
	m.logf("Removed %s", inst.Directory())
	return e
}

// Get returns the named instance, for direct use.
func (m *Manager) Get(name string) (*Instance, error) {
	inst, e := m.reg.get(name)
	if e != nil {
		return nil, opError(name, "get", e)
	}
	return inst, nil
}

// Names returns the instance names in the order they were created.
func (m *Manager) Names() []string {
	return m.reg.list()
}

// Instances returns the instances in the order they were created.
func (m *Manager) Instances() []*Instance {
	return m.reg.instances()
}

// List returns a snapshot of every instance, in the order they were
// created.
func (m *Manager) List() []InstanceInfo {
	return lo.Map(m.reg.instances(), func(inst *Instance, _ int) InstanceInfo {
		return inst.Info()
	})
}

// Versions returns the versions available, if the Versions in use can
// enumerate them.
func (m *Manager) Versions() ([]string, error) {
	m.lock()
	vers := m.versions
	m.unlock()
	if l, ok := vers.(interface{ List() ([]string, error) }); ok {
		return l.List()
	}
	return nil, errors.New("Versions cannot be listed")
}

func (m *Manager) Start(name string) error {
	inst, e := m.Get(name)
	if e != nil {
		return e
	}
	return inst.Start()
}

func (m *Manager) Stop(name string, grace time.Duration) error {
	inst, e := m.Get(name)
	if e != nil {
		return e
	}
	return inst.Stop(grace)
}

func (m *Manager) Restart(name string, grace time.Duration) error {
	inst, e := m.Get(name)
	if e != nil {
		return e
	}
	return inst.Restart(grace)
}

// ChangeVersion sets the version of a Stopped instance.
func (m *Manager) ChangeVersion(name, version string) error {
	inst, e := m.Get(name)
	if e != nil {
		return e
	}
	if e := inst.SetVersion(version); e != nil {
		if errors.Is(e, ErrInvalidState) {
			return &Error{Name: name, Op: "change version", Err: ErrInstanceNotStopped}
		}
		return e
	}
	if e := m.persist(inst); e != nil {
		m.logf("Failed to save version of %s: %v", name, e)
	}
	return nil
}

// Switch restarts the instance under another version.
func (m *Manager) Switch(name, version string, grace time.Duration) error {
	inst, e := m.Get(name)
	if e != nil {
		return e
	}
	old := inst.Version()
	e = inst.Switch(version, grace)
	if inst.Version() != old {
		if pe := m.persist(inst); pe != nil {
			m.logf("Failed to save version of %s: %v", name, pe)
		}
	}
	return e
}

func (m *Manager) SendCommand(name, text string) error {
	inst, e := m.Get(name)
	if e != nil {
		return e
	}
	return inst.SendCommand(text)
}

func (m *Manager) NextOutputLine(ctx context.Context, name string) (string, error) {
	inst, e := m.Get(name)
	if e != nil {
		return "", e
	}
	return inst.NextOutputLine(ctx)
}

// Restore registers the instances held by the Store.  Instances already
// registered are left alone.  Restored instances are Stopped.
func (m *Manager) Restore() error {
	m.lock()
	store := m.store
	m.unlock()
	if store == nil {
		return nil
	}
	recs, e := store.Records()
	if e != nil {
		return e
	}
	for _, rec := range recs {
		if !ValidName(rec.Name) || m.reg.has(rec.Name) {
			continue
		}
		inst := m.newInstance(rec.Name, rec.Version)
		if !rec.Created.IsZero() {
			inst.created = rec.Created
		}
		if _, e := os.Stat(inst.Directory()); e != nil {
			m.logf("Restored instance %s has no directory: %v", rec.Name, e)
		}
		if m.reg.insert(rec.Name, inst) == nil {
			m.logf("Restored instance %s (version %s)", rec.Name, rec.Version)
		}
	}
	m.listChanged()
	return nil
}

// Shutdown stops every instance, in parallel, waiting for all of them.
// The instances stay registered.
func (m *Manager) Shutdown(grace time.Duration) error {
	insts := m.reg.instances()
	errs := make([]error, len(insts))
	var wg sync.WaitGroup
	for n, inst := range insts {
		wg.Add(1)
		go func(n int, inst *Instance) {
			defer wg.Done()
			errs[n] = inst.Stop(grace)
		}(n, inst)
	}
	wg.Wait()
	m.logf("*** Serbo shut down: %s ***", m.serverRoot)
	return errors.Join(errs...)
}

func (m *Manager) GetLog(lastid int64) ([]LogRecord, int64) {
	return m.log.GetRecords(lastid)
}

func (m *Manager) WatchLog(old int64, expire time.Duration) int64 {
	return m.log.Watch(old, expire)
}

// NewManager returns a Manager keeping servers below serverRoot, and
// launching the jarfile jarName found in the folders below versionRoot.
// An empty serverRoot or versionRoot is taken relative to DefaultRoot.
func NewManager(serverRoot, versionRoot, jarName string) *Manager {
	if serverRoot == "" {
		serverRoot = filepath.Join(DefaultRoot(), "servers")
	}
	if versionRoot == "" {
		versionRoot = filepath.Join(DefaultRoot(), "versions")
	}
	if jarName == "" {
		jarName = "server.jar"
	}
	// The origin serial number is the current timestamp in nsec, so that
	// clients caching it notice when the Manager is replaced.
	m := &Manager{
		serverRoot:  serverRoot,
		versionRoot: versionRoot,
		jarName:     jarName,
		serial:      time.Now().UnixNano(),
		reg:         newRegistry(),
		defaults:    defaultPolicy(),
		launcher:    DefaultLauncher(),
		prov:        MkdirProvisioner{},
	}
	m.versions = VersionDir{Root: versionRoot, JarName: jarName}
	m.cvs = make(map[*sync.Cond]bool)
	m.createTime = time.Now()
	m.updateTime = m.createTime
	m.mlog = NewMultiLogger()
	m.log = NewLog()
	m.mlog.AddLogger(log.New(m.log, "", 0))
	m.logger = log.New(os.Stderr, "", log.LstdFlags)
	m.mlog.AddLogger(m.logger)
	return m
}
