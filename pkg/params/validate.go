package params

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/coreos/go-semver/semver"
	"gopkg.in/yaml.v3"
)

// heapSizePattern is the JVM -Xmx grammar: a positive integer with an
// optional k/m/g/t suffix
var heapSizePattern = regexp.MustCompile(`^[1-9][0-9]*[kKmMgGtT]?$`)

// hostnamePattern is an RFC 1123 host name
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*$`)

const passwordForbidden = "'\"\\\n\r"

// hasControl reports whether s holds a character that breaks a line in a
// rendered file or a command line
func hasControl(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return unicode.IsControl(r) || r == '\u2028' || r == '\u2029'
	})
}

// isPlainScalar reports whether s reads back unchanged as an unquoted YAML
// value
func isPlainScalar(s string) bool {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte("v: "+s+"\n"), &doc); err != nil || len(doc) != 1 {
		return false
	}
	v, ok := doc["v"].(string)
	return ok && v == s
}

// FieldError is one rejected parameter
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError lists every rejected parameter of a run. A run that fails
// validation performs no side effect.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return "invalid parameters: " + strings.Join(msgs, "; ")
}

// Has reports whether field was rejected
func (e *ValidationError) Has(field string) bool {
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Problems = append(e.Problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks every parameter and returns a *ValidationError listing all
// problems, or nil
func (p *Parameters) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(p.CassandraVersion) == "" {
		verr.add("cassandra_version", "must not be empty")
	} else if strings.TrimSpace(p.CassandraVersion) != p.CassandraVersion {
		verr.add("cassandra_version", "%q has surrounding whitespace", p.CassandraVersion)
	} else if _, err := ParseCassandraVersion(p.CassandraVersion); err != nil {
		verr.add("cassandra_version", "%v", err)
	}

	switch p.JavaVersion {
	case Java8, Java11:
	default:
		verr.add("java_version", "unsupported value %q (want 8 or 11)", p.JavaVersion)
	}

	switch {
	case strings.TrimSpace(p.ClusterName) == "":
		verr.add("cluster_name", "must not be empty")
	case hasControl(p.ClusterName):
		verr.add("cluster_name", "must not contain line breaks or control characters")
	case p.ClusterNameQuote == QuoteNone && !isPlainScalar(p.ClusterName):
		verr.add("cluster_name", "%q cannot be written unquoted; use cluster_name_quote single or double", p.ClusterName)
	}

	for field, value := range map[string]string{
		"datacenter": p.Datacenter,
		"rack":       p.Rack,
	} {
		if strings.TrimSpace(value) == "" {
			verr.add(field, "must not be empty")
		} else if hasControl(value) || strings.TrimSpace(value) != value {
			verr.add(field, "%q must not contain control characters or surrounding whitespace", value)
		}
	}

	switch p.ClusterNameQuote {
	case QuoteSingle, QuoteDouble, QuoteNone:
	default:
		verr.add("cluster_name_quote", "unsupported value %q (want single, double or none)", p.ClusterNameQuote)
	}

	if len(p.Seeds) == 0 {
		verr.add("seeds", "must not be empty")
	}
	for _, seed := range p.Seeds {
		if net.ParseIP(seed) == nil && !hostnamePattern.MatchString(seed) {
			verr.add("seeds", "%q is not an IP address or host name", seed)
		}
	}

	if !heapSizePattern.MatchString(p.MaxHeapSize) {
		verr.add("max_heap_size", "%q does not match <digits>[k|m|g|t]", p.MaxHeapSize)
	}

	switch p.GCType {
	case GCTypeG1, GCTypeCMS, GCTypeZGC:
	default:
		verr.add("gc_type", "unsupported value %q (want G1GC, CMS or ZGC)", p.GCType)
	}

	if strings.TrimSpace(p.CassandraUser) == "" {
		verr.add("cassandra_user", "must not be empty")
	}

	// the values are embedded in cqlsh command lines; never echo them
	if strings.ContainsAny(p.CassandraPassword, passwordForbidden) || hasControl(p.CassandraPassword) {
		verr.add("cassandra_password", "must not contain quotes, backslashes or control characters")
	}
	if strings.ContainsAny(p.CassandraInitialPassword, passwordForbidden) || hasControl(p.CassandraInitialPassword) {
		verr.add("cassandra_initial_password", "must not contain quotes, backslashes or control characters")
	}

	for field, dir := range map[string]string{
		"data_directory":         p.DataDirectory,
		"commitlog_directory":    p.CommitlogDirectory,
		"saved_caches_directory": p.SavedCachesDirectory,
		"hints_directory":        p.HintsDirectory,
		"files_dir":              p.FilesDir,
	} {
		if !filepath.IsAbs(dir) {
			verr.add(field, "%q must be an absolute path", dir)
		}
	}

	if p.ReplaceDeadNodeIP != "" && net.ParseIP(p.ReplaceDeadNodeIP) == nil {
		verr.add("replace_dead_node_ip", "%q is not an IP address", p.ReplaceDeadNodeIP)
	}

	if p.Facts.PrimaryIP != "" && net.ParseIP(p.Facts.PrimaryIP) == nil {
		verr.add("facts.primary_ip", "%q is not an IP address", p.Facts.PrimaryIP)
	}

	if len(verr.Problems) == 0 {
		return nil
	}
	// map iteration above is unordered
	sort.SliceStable(verr.Problems, func(i, j int) bool {
		return verr.Problems[i].Field < verr.Problems[j].Field
	})
	return verr
}

// ParseCassandraVersion parses MAJOR.MINOR.PATCH[-REVISION]. The packaging
// revision lands in PreRelease.
func ParseCassandraVersion(v string) (*semver.Version, error) {
	version, err := semver.NewVersion(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%q is not MAJOR.MINOR.PATCH[-REVISION]: %w", v, err)
	}
	return version, nil
}
