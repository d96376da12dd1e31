package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/cuemby/cassnode/pkg/derive"
	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/params"
)

const (
	// Header is the first comment of every rendered file. It carries no
	// timestamp so rendering stays byte-stable across runs.
	Header = "Managed by cassnode. Local changes will be overwritten."

	// NeutralizedMarker identifies a version options file that belongs to the
	// Java version not in use
	NeutralizedMarker = "# cassnode: neutralized"

	// SwapDisabledPrefix is prepended to active swap lines of /etc/fstab
	SwapDisabledPrefix = "# swap disabled: "

	// RangeRepairScriptPath is the ExecStart of the range-repair unit
	RangeRepairScriptPath = "/usr/local/bin/range-repair.sh"
)

// Input is everything rendering depends on
type Input struct {
	Params *params.Parameters
	Facts  facts.Facts
	Values *derive.Values
}

func execute(tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}

// QuoteClusterName renders name as a YAML scalar in the requested style
func QuoteClusterName(name string, style params.QuoteStyle) string {
	switch style {
	case params.QuoteDouble:
		return strconv.Quote(name)
	case params.QuoteNone:
		return name
	default:
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
}

// CassandraYAML renders cassandra.yaml
func CassandraYAML(in Input) ([]byte, error) {
	return execute(cassandraYAML, struct {
		Input
		Header        string
		ClusterName   string
		Seeds         string
		ListenAddress string
	}{
		Input:         in,
		Header:        Header,
		ClusterName:   QuoteClusterName(in.Params.ClusterName, in.Params.ClusterNameQuote),
		Seeds:         in.Params.Seeds.String(),
		ListenAddress: in.Facts.PrimaryIP,
	})
}

// JVMServerOptions renders jvm-server.options, the only file carrying heap,
// GC, GC logging and replace-address flags
func JVMServerOptions(in Input) ([]byte, error) {
	return execute(jvmServerOptions, struct {
		Input
		Header string
	}{Input: in, Header: Header})
}

// VersionOptions renders jvm<java>-server.options. The file of the active
// Java version carries its runtime flags; any other is neutralized.
func VersionOptions(in Input, java params.JavaVersion) ([]byte, error) {
	if java == in.Params.JavaVersion {
		return execute(activeVersionOptions, struct {
			Header string
			Java   params.JavaVersion
			Flags  []string
		}{Header, java, in.Values.VersionFlags})
	}
	return execute(neutralizedVersionOptions, struct {
		Header     string
		Marker     string
		Java       params.JavaVersion
		ActiveJava params.JavaVersion
	}{Header, NeutralizedMarker, java, in.Params.JavaVersion})
}

// RackDC renders cassandra-rackdc.properties
func RackDC(in Input) ([]byte, error) {
	return execute(rackDC, struct {
		Header     string
		Datacenter string
		Rack       string
	}{Header, in.Params.Datacenter, in.Params.Rack})
}

// YumRepo renders the repository definition pinned to the package version
func YumRepo(in Input) ([]byte, error) {
	return execute(yumRepo, struct {
		Header  string
		RepoID  string
		BaseURL string
		GPGKey  string
	}{Header, derive.RepoID, in.Values.RepoBaseURL, in.Values.RepoGPGKey})
}

// LimitsConf renders the resource limits of the service account
func LimitsConf(in Input) ([]byte, error) {
	return execute(limitsConf, struct {
		Header string
		User   string
	}{Header, in.Params.CassandraUser})
}

// SysctlConf renders the kernel tuning drop-in
func SysctlConf() ([]byte, error) {
	return execute(sysctlConf, struct{ Header string }{Header})
}

// CheckVersionsScript renders the version report helper
func CheckVersionsScript(in Input) ([]byte, error) {
	return execute(checkVersionsScript, struct {
		Header           string
		CassandraVersion string
		Java             params.JavaVersion
	}{Header, in.Values.PackageVersion, in.Params.JavaVersion})
}

// RangeRepairUnit renders the systemd unit of the range-repair service
func RangeRepairUnit(in Input) ([]byte, error) {
	return execute(rangeRepairUnit, struct {
		Header string
		User   string
		Script string
	}{Header, in.Params.CassandraUser, RangeRepairScriptPath})
}

// RangeRepairScript renders the loop run by the range-repair service
func RangeRepairScript(in Input) ([]byte, error) {
	return execute(rangeRepairScript, struct {
		Header        string
		DataDirectory string
	}{Header, in.Params.DataDirectory})
}

// DisableSwap comments out every active swap entry of an fstab. Comments,
// blank lines and other mounts are returned byte-identical, so applying it
// twice yields the same output as applying it once.
func DisableSwap(fstab []byte) []byte {
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(fstab, []byte("\n")) {
		if IsActiveSwapLine(string(line)) {
			out.WriteString(SwapDisabledPrefix)
		}
		out.Write(line)
	}
	return out.Bytes()
}

// IsActiveSwapLine reports whether an fstab line mounts swap and is not
// commented out
func IsActiveSwapLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	fields := strings.Fields(trimmed)
	return len(fields) >= 3 && fields[2] == "swap"
}
