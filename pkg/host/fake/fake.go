// Package fake provides an in-memory host for tests and simulated plans.
package fake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/cassnode/pkg/host"
	"github.com/cuemby/cassnode/pkg/types"
)

// HandlerFunc answers a command run on the fake host
type HandlerFunc func(ctx context.Context, command string) (*host.Result, error)

// Exit returns a handler that always exits with code
func Exit(code int) HandlerFunc {
	return func(context.Context, string) (*host.Result, error) {
		return &host.Result{ExitCode: code}, nil
	}
}

// Fail returns a handler whose command cannot be evaluated
func Fail(err error) HandlerFunc {
	return func(context.Context, string) (*host.Result, error) {
		return nil, err
	}
}

type file struct {
	content []byte
	mode    os.FileMode
	dir     bool
	owner   string
	group   string
}

// Host is an in-memory implementation of every host port. It is safe for
// concurrent use.
type Host struct {
	mu sync.Mutex

	files    map[string]*file
	packages map[string]string
	services map[string]*host.ServiceStatus
	restarts map[string]int
	users    map[string]host.UserInfo
	groups   map[string]bool
	handlers map[string]HandlerFunc
	failures map[string]error

	commands []string
	ops      []string
}

// New creates an empty host: no files, packages, services or accounts
func New() *Host {
	return &Host{
		files:    map[string]*file{"/": {dir: true, mode: 0755, owner: "root", group: "root"}},
		packages: make(map[string]string),
		services: make(map[string]*host.ServiceStatus),
		restarts: make(map[string]int),
		users:    make(map[string]host.UserInfo),
		groups:   map[string]bool{"root": true},
		handlers: make(map[string]HandlerFunc),
		failures: make(map[string]error),
	}
}

// Host returns the ports of h
func (h *Host) Host() *host.Host {
	return &host.Host{Files: h, Packages: h, Services: h, Accounts: h, Runner: h}
}

// Handle registers fn for an exact command line. Unregistered commands exit 0.
func (h *Host) Handle(command string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[command] = fn
}

// FailOn makes the mutation op fail with err. Ops are named as in Ops().
func (h *Host) FailOn(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = err
}

// Commands returns every command run, in order
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// Ops returns every mutation performed, in order, e.g. "write /etc/fstab"
// or "restart cassandra"
func (h *Host) Ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ops...)
}

// CountCommand returns how many times command was run
func (h *Host) CountCommand(command string) int {
	n := 0
	for _, c := range h.Commands() {
		if c == command {
			n++
		}
	}
	return n
}

// Restarts returns how many times a service was restarted
func (h *Host) Restarts(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts[name]
}

// Reset forgets recorded commands and ops, keeping state
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = nil
	h.ops = nil
}

// SetFile seeds a file without recording an op
func (h *Host) SetFile(p string, content []byte, mode os.FileMode, owner, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mkdirLocked(path.Dir(p), 0755, "root", "root")
	h.files[path.Clean(p)] = &file{content: append([]byte(nil), content...), mode: mode, owner: owner, group: group}
}

// SetPackage seeds an installed package
func (h *Host) SetPackage(name, version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packages[name] = version
}

// SetService seeds a service state
func (h *Host) SetService(name string, status host.ServiceStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[name] = &status
}

// Package returns the installed version of name, or ""
func (h *Host) Package(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.packages[name]
}

// Service returns the state of name
func (h *Host) Service(name string) host.ServiceStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.services[name]; ok {
		return *s
	}
	return host.ServiceStatus{}
}

// Paths returns every path on the host, sorted
func (h *Host) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	paths := make([]string, 0, len(h.files))
	for p := range h.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (h *Host) record(op string) error {
	h.ops = append(h.ops, op)
	return h.failures[op]
}

func (h *Host) mkdirLocked(p string, mode os.FileMode, owner, group string) {
	p = path.Clean(p)
	for dir := p; ; dir = path.Dir(dir) {
		if _, ok := h.files[dir]; ok {
			break
		}
		h.files[dir] = &file{dir: true, mode: mode, owner: owner, group: group}
		if dir == "/" || dir == "." {
			break
		}
	}
}

func notExist(op, p string) error {
	return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
}

// ReadFile implements host.Files
func (h *Host) ReadFile(p string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[path.Clean(p)]
	if !ok {
		return nil, notExist("open", p)
	}
	if f.dir {
		return nil, fmt.Errorf("read %s: is a directory", p)
	}
	return append([]byte(nil), f.content...), nil
}

// WriteFile implements host.Files
func (h *Host) WriteFile(p string, content []byte, mode os.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("write " + p); err != nil {
		return err
	}
	h.mkdirLocked(path.Dir(p), 0755, "root", "root")
	owner, group := "root", "root"
	if existing, ok := h.files[path.Clean(p)]; ok {
		owner, group = existing.owner, existing.group
	}
	h.files[path.Clean(p)] = &file{content: append([]byte(nil), content...), mode: mode, owner: owner, group: group}
	return nil
}

// Stat implements host.Files
func (h *Host) Stat(p string) (*host.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[path.Clean(p)]
	if !ok {
		return nil, notExist("stat", p)
	}
	return &host.FileInfo{Mode: f.mode, IsDir: f.dir, Owner: f.owner, Group: f.group}, nil
}

// MkdirAll implements host.Files
func (h *Host) MkdirAll(p string, mode os.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("mkdir " + p); err != nil {
		return err
	}
	h.mkdirLocked(p, mode, "root", "root")
	h.files[path.Clean(p)].mode = mode
	return nil
}

// Chmod implements host.Files
func (h *Host) Chmod(p string, mode os.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("chmod " + p); err != nil {
		return err
	}
	f, ok := h.files[path.Clean(p)]
	if !ok {
		return notExist("chmod", p)
	}
	f.mode = mode
	return nil
}

// Chown implements host.Files. Owner and group must exist.
func (h *Host) Chown(p, owner, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("chown " + p); err != nil {
		return err
	}
	f, ok := h.files[path.Clean(p)]
	if !ok {
		return notExist("chown", p)
	}
	if _, ok := h.users[owner]; !ok && owner != "root" {
		return fmt.Errorf("chown %s: unknown user %s", p, owner)
	}
	if !h.groups[group] {
		return fmt.Errorf("chown %s: unknown group %s", p, group)
	}
	f.owner, f.group = owner, group
	return nil
}

// InstalledVersion implements host.Packages
func (h *Host) InstalledVersion(_ context.Context, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.packages[name], nil
}

// Install implements host.Packages. An empty version installs "0-fake".
func (h *Host) Install(_ context.Context, name, version string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	target := name
	if version != "" {
		target += "-" + version
	}
	if err := h.record("install " + target); err != nil {
		return err
	}
	if version == "" {
		version = "0-fake"
	}
	h.packages[name] = version
	return nil
}

// Status implements host.Services
func (h *Host) Status(_ context.Context, name string) (host.ServiceStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.services[name]; ok {
		return *s, nil
	}
	return host.ServiceStatus{}, nil
}

func (h *Host) service(verb, name string, apply func(s *host.ServiceStatus)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(verb + " " + name); err != nil {
		return err
	}
	s, ok := h.services[name]
	if !ok {
		s = &host.ServiceStatus{}
		h.services[name] = s
	}
	apply(s)
	return nil
}

// Start implements host.Services
func (h *Host) Start(_ context.Context, name string) error {
	return h.service("start", name, func(s *host.ServiceStatus) { s.Running = true })
}

// Stop implements host.Services
func (h *Host) Stop(_ context.Context, name string) error {
	return h.service("stop", name, func(s *host.ServiceStatus) { s.Running = false })
}

// Restart implements host.Services
func (h *Host) Restart(_ context.Context, name string) error {
	return h.service("restart", name, func(s *host.ServiceStatus) {
		s.Running = true
		h.restarts[name]++
	})
}

// Enable implements host.Services
func (h *Host) Enable(_ context.Context, name string) error {
	return h.service("enable", name, func(s *host.ServiceStatus) { s.Enabled = true })
}

// Disable implements host.Services
func (h *Host) Disable(_ context.Context, name string) error {
	return h.service("disable", name, func(s *host.ServiceStatus) { s.Enabled = false })
}

// LookupUser implements host.Accounts
func (h *Host) LookupUser(_ context.Context, name string) (*host.UserInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.users[name]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GroupExists implements host.Accounts
func (h *Host) GroupExists(_ context.Context, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups[name], nil
}

// CreateGroup implements host.Accounts
func (h *Host) CreateGroup(_ context.Context, spec types.GroupSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("groupadd " + spec.Name); err != nil {
		return err
	}
	h.groups[spec.Name] = true
	return nil
}

// CreateUser implements host.Accounts
func (h *Host) CreateUser(_ context.Context, spec types.UserSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("useradd " + spec.Name); err != nil {
		return err
	}
	if spec.Group != "" && !h.groups[spec.Group] {
		return fmt.Errorf("useradd: group %s does not exist", spec.Group)
	}
	h.users[spec.Name] = host.UserInfo{Name: spec.Name, Group: spec.Group, Home: spec.Home, Shell: spec.Shell}
	return nil
}

// ModifyUser implements host.Accounts
func (h *Host) ModifyUser(_ context.Context, spec types.UserSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("usermod " + spec.Name); err != nil {
		return err
	}
	if _, ok := h.users[spec.Name]; !ok {
		return fmt.Errorf("usermod: user %s does not exist", spec.Name)
	}
	h.users[spec.Name] = host.UserInfo{Name: spec.Name, Group: spec.Group, Home: spec.Home, Shell: spec.Shell}
	return nil
}

// Run implements host.Runner. The handler runs without the lock held so it
// may inspect or change the host.
func (h *Host) Run(ctx context.Context, command string, _ time.Duration) (*host.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.commands = append(h.commands, command)
	fn, ok := h.handlers[command]
	h.mu.Unlock()

	if !ok {
		return &host.Result{}, nil
	}
	return fn(ctx, command)
}
