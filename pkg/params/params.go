package params

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/types"
	"gopkg.in/yaml.v3"
)

// JavaVersion is the Java major version Cassandra runs on
type JavaVersion string

const (
	Java8  JavaVersion = "8"
	Java11 JavaVersion = "11"
)

// GCType selects the garbage collector
type GCType string

const (
	GCTypeG1  GCType = "G1GC"
	GCTypeCMS GCType = "CMS"
	GCTypeZGC GCType = "ZGC"
)

// QuoteStyle controls how cluster_name is quoted in cassandra.yaml
type QuoteStyle string

const (
	QuoteSingle QuoteStyle = "single"
	QuoteDouble QuoteStyle = "double"
	QuoteNone   QuoteStyle = "none"
)

// Format is the encoding of a parameter file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Parameters is the full input of a convergence run. It is immutable once
// validated.
type Parameters struct {
	CassandraVersion         string      `yaml:"cassandra_version" toml:"cassandra_version"`
	JavaVersion              JavaVersion `yaml:"java_version" toml:"java_version"`
	JavaHeadless             bool        `yaml:"java_headless" toml:"java_headless"`
	ClusterName              string      `yaml:"cluster_name" toml:"cluster_name"`
	ClusterNameQuote         QuoteStyle  `yaml:"cluster_name_quote" toml:"cluster_name_quote"`
	Seeds                    Seeds       `yaml:"seeds" toml:"seeds"`
	MaxHeapSize              string      `yaml:"max_heap_size" toml:"max_heap_size"`
	Datacenter               string      `yaml:"datacenter" toml:"datacenter"`
	Rack                     string      `yaml:"rack" toml:"rack"`
	GCType                   GCType      `yaml:"gc_type" toml:"gc_type"`
	CassandraUser            string      `yaml:"cassandra_user" toml:"cassandra_user"`
	CassandraPassword        string      `yaml:"cassandra_password" toml:"cassandra_password"`
	CassandraInitialPassword string      `yaml:"cassandra_initial_password" toml:"cassandra_initial_password"`
	DataDirectory            string      `yaml:"data_directory" toml:"data_directory"`
	CommitlogDirectory       string      `yaml:"commitlog_directory" toml:"commitlog_directory"`
	SavedCachesDirectory     string      `yaml:"saved_caches_directory" toml:"saved_caches_directory"`
	HintsDirectory           string      `yaml:"hints_directory" toml:"hints_directory"`
	DisableSwapTuneOS        bool        `yaml:"disable_swap_tune_os" toml:"disable_swap_tune_os"`
	ReplaceDeadNodeIP        string      `yaml:"replace_dead_node_ip" toml:"replace_dead_node_ip"`
	EnableRangeRepairScript  bool        `yaml:"enable_range_repair_script" toml:"enable_range_repair_script"`
	FilesDir                 string      `yaml:"files_dir" toml:"files_dir"`

	Facts facts.Overrides `yaml:"facts" toml:"facts"`
}

// Default returns parameters with every optional key set. Files are decoded
// on top of these values, so absent keys keep their default.
func Default() Parameters {
	return Parameters{
		CassandraVersion:         "4.1.10-1",
		JavaVersion:              Java11,
		ClusterNameQuote:         QuoteSingle,
		Datacenter:               "dc1",
		Rack:                     "rack1",
		GCType:                   GCTypeG1,
		CassandraUser:            "cassandra",
		CassandraInitialPassword: DefaultInitialPassword,
		DataDirectory:            "/var/lib/cassandra/data",
		CommitlogDirectory:       "/var/lib/cassandra/commitlog",
		SavedCachesDirectory:     "/var/lib/cassandra/saved_caches",
		HintsDirectory:           "/var/lib/cassandra/hints",
		DisableSwapTuneOS:        true,
		FilesDir:                 "/usr/share/cassnode/files",
	}
}

// FormatForPath picks the decoder from a file extension
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Load reads, decodes and validates a parameter file
func Load(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}
	return Parse(data, FormatForPath(path))
}

// Parse decodes and validates parameters. Validation failures are returned
// as *ValidationError.
func Parse(data []byte, format Format) (*Parameters, error) {
	p := Default()

	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported parameter format: %s", format)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultInitialPassword is the password of the superuser on a fresh Cassandra install
const DefaultInitialPassword = "cassandra"

// Secrets returns the values that must be redacted from any output. The
// stock initial password is public and would otherwise mask the user name
// and every path containing "cassandra".
func (p *Parameters) Secrets() []string {
	var secrets []string
	if p.CassandraPassword != "" {
		secrets = append(secrets, p.CassandraPassword)
	}
	if p.CassandraInitialPassword != "" && p.CassandraInitialPassword != DefaultInitialPassword {
		secrets = append(secrets, p.CassandraInitialPassword)
	}
	return secrets
}

// Redacted returns a copy safe to print
func (p Parameters) Redacted() Parameters {
	if p.CassandraPassword != "" {
		p.CassandraPassword = types.Redacted
	}
	if p.CassandraInitialPassword != "" && p.CassandraInitialPassword != DefaultInitialPassword {
		p.CassandraInitialPassword = types.Redacted
	}
	p.Seeds = append(Seeds(nil), p.Seeds...)
	return p
}
