package types

import (
	"os"
	"time"
)

// ArtifactKind identifies the kind of host resource an artifact manages
type ArtifactKind string

const (
	KindFile      ArtifactKind = "file"
	KindDirectory ArtifactKind = "directory"
	KindLineEdit  ArtifactKind = "line_edit"
	KindPackage   ArtifactKind = "package"
	KindService   ArtifactKind = "service"
	KindExec      ArtifactKind = "exec"
	KindUser      ArtifactKind = "user"
	KindGroup     ArtifactKind = "group"
)

// Feature names a conditional subsystem. Artifacts without a feature are mandatory.
type Feature string

const (
	FeatureNone               Feature = ""
	FeatureOSTuning           Feature = "os_tuning"
	FeatureSwap               Feature = "swap"
	FeatureRangeRepair        Feature = "range_repair"
	FeatureJavaPackage        Feature = "java_package"
	FeatureCredentialRotation Feature = "credential_rotation"
)

// Artifact is one unit of desired host state. Exactly one of the kind-specific
// pointers is set, matching Kind.
type Artifact struct {
	ID      string
	Kind    ArtifactKind
	Feature Feature

	// Requires lists artifact IDs that must converge before this one is applied
	Requires []string

	// Subscribe lists artifact IDs whose change in the same run triggers a
	// refresh (service restart, refresh-only exec)
	Subscribe []string

	File      *FileSpec
	Directory *DirectorySpec
	LineEdit  *LineEditSpec
	Package   *PackageSpec
	Service   *ServiceSpec
	Exec      *ExecSpec
	User      *UserSpec
	Group     *GroupSpec
}

// Mandatory reports whether a failure of this artifact fails the whole run
func (a *Artifact) Mandatory() bool {
	return a.Feature == FeatureNone
}

// Sensitive returns the literal values that must never leave the process
// unredacted for this artifact
func (a *Artifact) Sensitive() []string {
	if a.Exec == nil {
		return nil
	}
	return a.Exec.Sensitive
}

// FileSpec describes a regular file with exact content
type FileSpec struct {
	Path    string
	Content []byte
	// Source is a file on the host whose bytes are the desired content.
	// When set, Content is ignored.
	Source string
	Mode   os.FileMode
	Owner  string
	Group  string
}

// DirectorySpec describes a directory and its ownership
type DirectorySpec struct {
	Path  string
	Mode  os.FileMode
	Owner string
	Group string
}

// LineEditSpec describes an in-place edit of a file that is not owned
// wholesale. Edit receives the observed content and returns the desired
// content; it must be idempotent.
type LineEditSpec struct {
	Path string
	Edit func(observed []byte) []byte `json:"-"`
}

// PackageSpec pins a package. An empty Version means any installed version.
type PackageSpec struct {
	Name    string
	Version string
}

// ServiceSpec describes the desired supervisor state of a service
type ServiceSpec struct {
	Name    string
	Running bool
	Enabled bool
}

// ExecSpec describes a one-shot command
type ExecSpec struct {
	Command string

	// Unless is a read-only probe; when it exits zero the command does not run
	Unless string

	// RefreshOnly execs run only when a subscribed artifact changed
	RefreshOnly bool

	// VerifyAfter re-runs Unless after Command and fails the artifact if the
	// probe still does not pass
	VerifyAfter bool

	Timeout time.Duration

	// Sensitive holds literals (passwords) embedded in Command or Unless
	Sensitive []string `json:"-"`
}

// UserSpec describes a local account
type UserSpec struct {
	Name   string
	Group  string
	Home   string
	Shell  string
	System bool
}

// GroupSpec describes a local group
type GroupSpec struct {
	Name   string
	System bool
}

// ArtifactID builds the canonical "<kind>:<name>" identifier
func ArtifactID(kind ArtifactKind, name string) string {
	return string(kind) + ":" + name
}

// NewFile creates a file artifact
func NewFile(path string, content []byte, mode os.FileMode, owner, group string) *Artifact {
	return &Artifact{
		ID:   ArtifactID(KindFile, path),
		Kind: KindFile,
		File: &FileSpec{Path: path, Content: content, Mode: mode, Owner: owner, Group: group},
	}
}

// NewSourcedFile creates a file artifact whose content is copied from source
func NewSourcedFile(path, source string, mode os.FileMode, owner, group string) *Artifact {
	return &Artifact{
		ID:   ArtifactID(KindFile, path),
		Kind: KindFile,
		File: &FileSpec{Path: path, Source: source, Mode: mode, Owner: owner, Group: group},
	}
}

// NewDirectory creates a directory artifact
func NewDirectory(path string, mode os.FileMode, owner, group string) *Artifact {
	return &Artifact{
		ID:        ArtifactID(KindDirectory, path),
		Kind:      KindDirectory,
		Directory: &DirectorySpec{Path: path, Mode: mode, Owner: owner, Group: group},
	}
}

// NewLineEdit creates a line edit artifact
func NewLineEdit(path string, edit func([]byte) []byte) *Artifact {
	return &Artifact{
		ID:       ArtifactID(KindLineEdit, path),
		Kind:     KindLineEdit,
		LineEdit: &LineEditSpec{Path: path, Edit: edit},
	}
}

// NewPackage creates a package artifact
func NewPackage(name, version string) *Artifact {
	return &Artifact{
		ID:      ArtifactID(KindPackage, name),
		Kind:    KindPackage,
		Package: &PackageSpec{Name: name, Version: version},
	}
}

// NewService creates a service artifact
func NewService(name string, running, enabled bool) *Artifact {
	return &Artifact{
		ID:      ArtifactID(KindService, name),
		Kind:    KindService,
		Service: &ServiceSpec{Name: name, Running: running, Enabled: enabled},
	}
}

// NewExec creates an exec artifact
func NewExec(name string, spec ExecSpec) *Artifact {
	return &Artifact{
		ID:   ArtifactID(KindExec, name),
		Kind: KindExec,
		Exec: &spec,
	}
}

// NewUser creates a user artifact
func NewUser(spec UserSpec) *Artifact {
	return &Artifact{
		ID:   ArtifactID(KindUser, spec.Name),
		Kind: KindUser,
		User: &spec,
	}
}

// NewGroup creates a group artifact
func NewGroup(name string) *Artifact {
	return &Artifact{
		ID:    ArtifactID(KindGroup, name),
		Kind:  KindGroup,
		Group: &GroupSpec{Name: name, System: true},
	}
}

// WithFeature tags the artifact with a conditional feature
func (a *Artifact) WithFeature(f Feature) *Artifact {
	a.Feature = f
	return a
}

// WithRequires appends prerequisite artifact IDs
func (a *Artifact) WithRequires(ids ...string) *Artifact {
	a.Requires = append(a.Requires, ids...)
	return a
}

// WithSubscribe appends artifact IDs that trigger a refresh
func (a *Artifact) WithSubscribe(ids ...string) *Artifact {
	a.Subscribe = append(a.Subscribe, ids...)
	return a
}
