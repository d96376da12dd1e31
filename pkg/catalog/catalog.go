package catalog

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cuemby/cassnode/pkg/derive"
	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/features"
	"github.com/cuemby/cassnode/pkg/params"
	"github.com/cuemby/cassnode/pkg/render"
	"github.com/cuemby/cassnode/pkg/types"
)

// Managed paths
const (
	RepoFilePath        = "/etc/yum.repos.d/apache-cassandra.repo"
	CassandraYAMLPath   = derive.ConfDir + "/cassandra.yaml"
	RackDCPath          = derive.ConfDir + "/cassandra-rackdc.properties"
	JammJarName         = "jamm-0.3.2.jar"
	JammJarPath         = "/usr/share/cassandra/lib/" + JammJarName
	CheckVersionsPath   = "/usr/local/bin/check-versions.sh"
	SysctlPath          = "/etc/sysctl.d/99-cassandra.conf"
	LimitsPath          = "/etc/security/limits.d/cassandra.conf"
	FstabPath           = "/etc/fstab"
	RangeRepairUnitPath = "/etc/systemd/system/range-repair.service"
	RangeRepairScript   = render.RangeRepairScriptPath
	ServiceHome         = "/var/lib/cassandra"
)

// Artifact names that are not paths
const (
	ServiceCassandra   = derive.PackageName
	ServiceRangeRepair = "range-repair"

	ExecApplySysctl    = "apply-sysctl-cassandra"
	ExecSwapoff        = "swapoff"
	ExecDaemonReload   = "systemd-daemon-reload"
	ExecChangePassword = "change-cassandra-password"
)

const (
	rootUser = "root"

	modeConfig os.FileMode = 0644
	modeScript os.FileMode = 0755
	modeData   os.FileMode = 0750

	// CredentialTimeout bounds each cqlsh invocation of the rotation
	CredentialTimeout = 30 * time.Second
)

// ErrNoPrimaryIP is returned when no address is known for listen_address
var ErrNoPrimaryIP = errors.New("no primary IPv4 address found: set facts.primary_ip")

// Catalog is the desired state of one run: every artifact in apply order,
// plus the inputs it was built from. It is built fresh on every run.
type Catalog struct {
	Params    *params.Parameters
	Facts     facts.Facts
	Features  features.FeatureSet
	Values    *derive.Values
	Artifacts []*types.Artifact

	index map[string]*types.Artifact
}

// Build validates parameters, computes the feature set, derives values,
// renders every file and returns the ordered artifact list. No host state is
// read or changed.
func Build(p *params.Parameters, f facts.Facts) (*Catalog, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f = f.Apply(p.Facts)
	if f.PrimaryIP == "" {
		return nil, ErrNoPrimaryIP
	}

	fs := features.Compute(p, f)
	v, err := derive.Derive(p, fs)
	if err != nil {
		return nil, err
	}

	b := &builder{
		c: &Catalog{
			Params:   p,
			Facts:    f,
			Features: fs,
			Values:   v,
			index:    make(map[string]*types.Artifact),
		},
		in: render.Input{Params: p, Facts: f, Values: v},
	}

	steps := []func() error{
		b.repository,
		b.packages,
		b.accounts,
		b.directories,
		b.configFiles,
		b.osTuning,
		b.swap,
		b.service,
		b.rangeRepair,
		b.credentialRotation,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if err := b.c.check(); err != nil {
		return nil, err
	}
	return b.c, nil
}

// Get returns an artifact by ID, or nil
func (c *Catalog) Get(id string) *types.Artifact {
	return c.index[id]
}

// IDs returns every artifact ID in apply order
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Artifacts))
	for _, a := range c.Artifacts {
		ids = append(ids, a.ID)
	}
	return ids
}

// Secrets returns the values redacted from every output of the run
func (c *Catalog) Secrets() []string {
	return c.Params.Secrets()
}

// RenderedFile returns the desired content of a fully managed file. Files
// copied from files_dir and edited files have no content of their own.
func (c *Catalog) RenderedFile(filePath string) ([]byte, error) {
	a := c.Get(types.ArtifactID(types.KindFile, filePath))
	if a == nil {
		if c.Get(types.ArtifactID(types.KindLineEdit, filePath)) != nil {
			return nil, fmt.Errorf("%s is edited in place, its content depends on the host", filePath)
		}
		return nil, fmt.Errorf("%s is not managed on this host", filePath)
	}
	if a.File.Source != "" {
		return nil, fmt.Errorf("%s is copied from %s", filePath, a.File.Source)
	}
	return a.File.Content, nil
}

// check verifies that IDs are unique and that every edge points to an
// artifact earlier in the list
func (c *Catalog) check() error {
	seen := make(map[string]bool, len(c.Artifacts))
	for _, a := range c.Artifacts {
		if seen[a.ID] {
			return fmt.Errorf("catalog: duplicate artifact %s", a.ID)
		}
		for _, dep := range append(append([]string{}, a.Requires...), a.Subscribe...) {
			if !seen[dep] {
				return fmt.Errorf("catalog: %s depends on %s, which is not an earlier artifact", a.ID, dep)
			}
		}
		seen[a.ID] = true
	}
	return nil
}

type builder struct {
	c  *Catalog
	in render.Input
}

// add appends artifacts whose feature is enabled and drops the rest
func (b *builder) add(artifacts ...*types.Artifact) {
	for _, a := range artifacts {
		if !b.c.Features.Enabled(a.Feature) {
			continue
		}
		b.c.Artifacts = append(b.c.Artifacts, a)
		b.c.index[a.ID] = a
	}
}

func (b *builder) has(id string) bool {
	return b.c.index[id] != nil
}

func (b *builder) file(filePath string, mode os.FileMode, owner string, fn func() ([]byte, error)) (*types.Artifact, error) {
	content, err := fn()
	if err != nil {
		return nil, err
	}
	return types.NewFile(filePath, content, mode, owner, owner), nil
}

func (b *builder) repository() error {
	repo, err := b.file(RepoFilePath, modeConfig, rootUser, func() ([]byte, error) { return render.YumRepo(b.in) })
	if err != nil {
		return err
	}
	b.add(repo)
	return nil
}

func (b *builder) packages() error {
	repo := types.ArtifactID(types.KindFile, RepoFilePath)
	if b.c.Values.JavaPackage != "" {
		b.add(types.NewPackage(b.c.Values.JavaPackage, "").
			WithFeature(types.FeatureJavaPackage))
	}
	b.add(types.NewPackage(b.c.Values.PackageName, b.c.Values.PackageVersion).
		WithRequires(repo))
	return nil
}

func (b *builder) accounts() error {
	user := b.c.Params.CassandraUser
	b.add(types.NewGroup(user))
	b.add(types.NewUser(types.UserSpec{
		Name:   user,
		Group:  user,
		Home:   ServiceHome,
		Shell:  "/sbin/nologin",
		System: true,
	}).WithRequires(types.ArtifactID(types.KindGroup, user)))
	return nil
}

func (b *builder) directories() error {
	p := b.c.Params
	user := types.ArtifactID(types.KindUser, p.CassandraUser)
	for _, dir := range []string{p.DataDirectory, p.CommitlogDirectory, p.SavedCachesDirectory, p.HintsDirectory} {
		if b.has(types.ArtifactID(types.KindDirectory, dir)) {
			continue
		}
		b.add(types.NewDirectory(dir, modeData, p.CassandraUser, p.CassandraUser).WithRequires(user))
	}
	return nil
}

func (b *builder) configFiles() error {
	p := b.c.Params
	pkg := types.ArtifactID(types.KindPackage, b.c.Values.PackageName)

	type rendered struct {
		path   string
		render func() ([]byte, error)
	}
	files := []rendered{
		{CassandraYAMLPath, func() ([]byte, error) { return render.CassandraYAML(b.in) }},
		{derive.JVMServerOptionsPath, func() ([]byte, error) { return render.JVMServerOptions(b.in) }},
	}
	for _, java := range []params.JavaVersion{params.Java8, params.Java11} {
		optionsPath, err := derive.OptionsPath(java)
		if err != nil {
			return err
		}
		files = append(files, rendered{optionsPath, func() ([]byte, error) { return render.VersionOptions(b.in, java) }})
	}
	files = append(files, rendered{RackDCPath, func() ([]byte, error) { return render.RackDC(b.in) }})

	for _, f := range files {
		a, err := b.file(f.path, modeConfig, p.CassandraUser, f.render)
		if err != nil {
			return err
		}
		b.add(a.WithRequires(pkg, types.ArtifactID(types.KindUser, p.CassandraUser)))
	}

	b.add(types.NewSourcedFile(JammJarPath, path.Join(p.FilesDir, JammJarName), modeConfig, p.CassandraUser, p.CassandraUser).
		WithRequires(pkg, types.ArtifactID(types.KindUser, p.CassandraUser)))

	check, err := b.file(CheckVersionsPath, modeScript, rootUser, func() ([]byte, error) { return render.CheckVersionsScript(b.in) })
	if err != nil {
		return err
	}
	b.add(check)
	return nil
}

func (b *builder) osTuning() error {
	sysctl, err := b.file(SysctlPath, modeConfig, rootUser, render.SysctlConf)
	if err != nil {
		return err
	}
	limits, err := b.file(LimitsPath, modeConfig, rootUser, func() ([]byte, error) { return render.LimitsConf(b.in) })
	if err != nil {
		return err
	}

	b.add(
		sysctl.WithFeature(types.FeatureOSTuning),
		types.NewExec(ExecApplySysctl, types.ExecSpec{
			Command:     "sysctl -p " + SysctlPath,
			RefreshOnly: true,
		}).WithFeature(types.FeatureOSTuning).WithSubscribe(sysctl.ID),
		limits.WithFeature(types.FeatureOSTuning),
	)
	return nil
}

func (b *builder) swap() error {
	b.add(
		types.NewExec(ExecSwapoff, types.ExecSpec{
			Command: "swapoff -a",
			// /proc/swaps has a header line; any further line is an active swap area
			Unless: "awk 'NR > 1 { exit 1 }' /proc/swaps",
		}).WithFeature(types.FeatureSwap),
		types.NewLineEdit(FstabPath, render.DisableSwap).WithFeature(types.FeatureSwap),
	)
	return nil
}

func (b *builder) service() error {
	p := b.c.Params
	pkg := types.ArtifactID(types.KindPackage, b.c.Values.PackageName)

	requires := []string{pkg, types.ArtifactID(types.KindUser, p.CassandraUser)}
	if java := types.ArtifactID(types.KindPackage, b.c.Values.JavaPackage); b.has(java) {
		requires = append(requires, java)
	}
	for _, dir := range []string{p.DataDirectory, p.CommitlogDirectory, p.SavedCachesDirectory, p.HintsDirectory} {
		id := types.ArtifactID(types.KindDirectory, dir)
		if !contains(requires, id) {
			requires = append(requires, id)
		}
	}

	var subscribe []string
	for _, a := range b.c.Artifacts {
		if a.Kind != types.KindFile {
			continue
		}
		if strings.HasPrefix(a.File.Path, derive.ConfDir+"/") || a.File.Path == JammJarPath {
			subscribe = append(subscribe, a.ID)
		}
	}

	b.add(types.NewService(ServiceCassandra, true, true).
		WithRequires(requires...).
		WithSubscribe(subscribe...))
	return nil
}

func (b *builder) rangeRepair() error {
	script, err := b.file(RangeRepairScript, modeScript, rootUser, func() ([]byte, error) { return render.RangeRepairScript(b.in) })
	if err != nil {
		return err
	}
	unit, err := b.file(RangeRepairUnitPath, modeConfig, rootUser, func() ([]byte, error) { return render.RangeRepairUnit(b.in) })
	if err != nil {
		return err
	}

	reload := types.NewExec(ExecDaemonReload, types.ExecSpec{
		Command:     "systemctl daemon-reload",
		RefreshOnly: true,
	}).WithSubscribe(unit.ID)

	b.add(
		script.WithFeature(types.FeatureRangeRepair),
		unit.WithFeature(types.FeatureRangeRepair),
		reload.WithFeature(types.FeatureRangeRepair),
		types.NewService(ServiceRangeRepair, true, true).
			WithFeature(types.FeatureRangeRepair).
			WithRequires(types.ArtifactID(types.KindService, ServiceCassandra), script.ID, unit.ID).
			WithSubscribe(script.ID, unit.ID),
	)
	return nil
}

func (b *builder) credentialRotation() error {
	p := b.c.Params
	b.add(types.NewExec(ExecChangePassword, types.ExecSpec{
		Command:     ChangePasswordCommand(p.CassandraUser, p.CassandraInitialPassword, p.CassandraPassword),
		Unless:      PasswordProbeCommand(p.CassandraUser, p.CassandraPassword),
		VerifyAfter: true,
		Timeout:     CredentialTimeout,
		Sensitive:   p.Secrets(),
	}).
		WithFeature(types.FeatureCredentialRotation).
		WithRequires(types.ArtifactID(types.KindService, ServiceCassandra)))
	return nil
}

// PasswordProbeCommand logs in with the desired password and exits. It
// succeeds only when the password is already in effect.
func PasswordProbeCommand(user, password string) string {
	return fmt.Sprintf("cqlsh -u %s -p '%s' -e 'exit'", user, password)
}

// ChangePasswordCommand logs in with the initial password and sets the
// desired one
func ChangePasswordCommand(user, initial, password string) string {
	return fmt.Sprintf(`cqlsh -u %s -p %s -e "ALTER USER %s WITH PASSWORD '%s';"`, user, shellArg(initial), user, password)
}

// shellArg single-quotes s when it would not survive word splitting as is
func shellArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t$`&|;<>()*?[]{}!#~") {
		return s
	}
	return "'" + s + "'"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
