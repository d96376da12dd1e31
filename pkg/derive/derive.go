package derive

import (
	"fmt"
	"path"

	"github.com/cuemby/cassnode/pkg/features"
	"github.com/cuemby/cassnode/pkg/params"
	units "github.com/docker/go-units"
)

const (
	// PackageName is the managed Cassandra package and service
	PackageName = "cassandra"

	RepoID     = "apache-cassandra"
	RepoRoot   = "https://downloads.apache.org/cassandra/"
	RepoGPGKey = "https://downloads.apache.org/cassandra/KEYS"

	ConfDir              = "/etc/cassandra/conf"
	JVMServerOptionsPath = ConfDir + "/jvm-server.options"
	GCLogPath            = "/var/log/cassandra/gc.log"

	// FirstModernMajor is the first Cassandra major line without Thrift
	FirstModernMajor = 4

	// maxYoungGenBytes caps the CMS young generation the way cassandra-env.sh
	// does for an 8 core host (100MB per core)
	maxYoungGenBytes = 800 * units.MiB
)

// supportedJava lists the versions that get a jvm<N>-server.options file
var supportedJava = []params.JavaVersion{params.Java8, params.Java11}

// DerivationError is returned for parameter combinations that validate
// individually but cannot be derived together. It aborts the run before
// rendering.
type DerivationError struct {
	Reason string
}

func (e *DerivationError) Error() string {
	return "derivation failed: " + e.Reason
}

func derivationErrorf(format string, args ...any) *DerivationError {
	return &DerivationError{Reason: fmt.Sprintf(format, args...)}
}

// Values are the derived inputs of rendering and the catalog. Every field is
// a pure function of parameters and the feature set, which carries the host
// facts that matter.
type Values struct {
	PackageName    string
	PackageVersion string

	MajorLine int64
	StartRPC  bool

	RepoBaseURL string
	RepoGPGKey  string

	// JavaPackage is empty when the Java package is not managed on this host
	JavaPackage string

	ActiveOptionsPath    string
	InactiveOptionsPaths []string

	HeapBytes          int64
	HeapFlags          []string
	GCFlags            []string
	GCLogFlags         []string
	VersionFlags       []string
	ReplaceAddressFlag string
}

// Derive computes all derived values. p must already be validated.
func Derive(p *params.Parameters, fs features.FeatureSet) (*Values, error) {
	version, err := params.ParseCassandraVersion(p.CassandraVersion)
	if err != nil {
		return nil, derivationErrorf("%v", err)
	}

	v := &Values{
		PackageName:    PackageName,
		PackageVersion: p.CassandraVersion,
		MajorLine:      version.Major,
		StartRPC:       version.Major < FirstModernMajor,
		RepoBaseURL:    RepoBaseURL(p.CassandraVersion),
		RepoGPGKey:     RepoGPGKey,
	}

	if v.StartRPC && p.JavaVersion != params.Java8 {
		return nil, derivationErrorf("cassandra %s runs only on java 8, got java %s", p.CassandraVersion, p.JavaVersion)
	}

	if fs.JavaPackage {
		if v.JavaPackage, err = JavaPackage(p.JavaVersion, p.JavaHeadless); err != nil {
			return nil, err
		}
	}

	if v.ActiveOptionsPath, err = OptionsPath(p.JavaVersion); err != nil {
		return nil, err
	}
	for _, java := range supportedJava {
		if java == p.JavaVersion {
			continue
		}
		inactive, _ := OptionsPath(java)
		v.InactiveOptionsPaths = append(v.InactiveOptionsPaths, inactive)
	}

	if v.HeapBytes, err = units.RAMInBytes(p.MaxHeapSize); err != nil {
		return nil, derivationErrorf("max_heap_size %q: %v", p.MaxHeapSize, err)
	}
	v.HeapFlags = HeapFlags(p.MaxHeapSize)

	if v.GCFlags, err = GCFlags(p.GCType, p.JavaVersion, v.HeapBytes); err != nil {
		return nil, err
	}
	if v.GCLogFlags, err = GCLogFlags(p.JavaVersion); err != nil {
		return nil, err
	}
	if v.VersionFlags, err = VersionFlags(p.JavaVersion); err != nil {
		return nil, err
	}

	if p.ReplaceDeadNodeIP != "" {
		v.ReplaceAddressFlag = "-Dcassandra.replace_address=" + p.ReplaceDeadNodeIP
	}

	return v, nil
}

// JVMFlags returns the flags of the active jvm-server.options file in
// rendering order
func (v *Values) JVMFlags() []string {
	var flags []string
	flags = append(flags, v.HeapFlags...)
	flags = append(flags, v.GCFlags...)
	flags = append(flags, v.GCLogFlags...)
	if v.ReplaceAddressFlag != "" {
		flags = append(flags, v.ReplaceAddressFlag)
	}
	return flags
}

// RepoBaseURL embeds the full version, packaging revision included, as the
// path segment. It shares its input with the package ensure target so the two
// cannot diverge.
func RepoBaseURL(cassandraVersion string) string {
	return RepoRoot + cassandraVersion + "/redhat/"
}

// JavaPackage resolves the RedHat package providing the requested JDK
func JavaPackage(java params.JavaVersion, headless bool) (string, error) {
	suffix := "devel"
	if headless {
		suffix = "headless"
	}
	switch java {
	case params.Java8:
		return "java-1.8.0-openjdk-" + suffix, nil
	case params.Java11:
		return "java-11-openjdk-" + suffix, nil
	default:
		return "", derivationErrorf("no java package for java_version %q", java)
	}
}

// OptionsPath returns the version specific options file of a Java version
func OptionsPath(java params.JavaVersion) (string, error) {
	switch java {
	case params.Java8, params.Java11:
		return path.Join(ConfDir, fmt.Sprintf("jvm%s-server.options", java)), nil
	default:
		return "", derivationErrorf("no options file for java_version %q", java)
	}
}

// HeapFlags pins minimum and maximum heap to the same size
func HeapFlags(size string) []string {
	return []string{"-Xms" + size, "-Xmx" + size}
}

// GCFlags returns the collector flags for a GC type on a Java version
func GCFlags(gc params.GCType, java params.JavaVersion, heapBytes int64) ([]string, error) {
	switch gc {
	case params.GCTypeG1:
		return []string{
			"-XX:+UseG1GC",
			"-XX:+ParallelRefProcEnabled",
			"-XX:MaxTenuringThreshold=1",
			"-XX:G1HeapRegionSize=16m",
			"-XX:G1RSetUpdatingPauseTimePercent=5",
			"-XX:MaxGCPauseMillis=300",
			"-XX:InitiatingHeapOccupancyPercent=70",
		}, nil
	case params.GCTypeCMS:
		flags := []string{"-Xmn" + YoungGenSize(heapBytes)}
		if java == params.Java8 {
			flags = append(flags, "-XX:+UseParNewGC")
		}
		return append(flags,
			"-XX:+UseConcMarkSweepGC",
			"-XX:+CMSParallelRemarkEnabled",
			"-XX:SurvivorRatio=8",
			"-XX:MaxTenuringThreshold=1",
			"-XX:CMSInitiatingOccupancyFraction=75",
			"-XX:+UseCMSInitiatingOccupancyOnly",
			"-XX:CMSWaitDuration=10000",
			"-XX:+CMSParallelInitialMarkEnabled",
			"-XX:+CMSEdenChunksRecordAlways",
		), nil
	case params.GCTypeZGC:
		if java != params.Java11 {
			return nil, derivationErrorf("gc_type ZGC requires java 11, got java %s", java)
		}
		return []string{
			"-XX:+UnlockExperimentalVMOptions",
			"-XX:+UseZGC",
		}, nil
	default:
		return nil, derivationErrorf("unsupported gc_type %q", gc)
	}
}

// YoungGenSize is a quarter of the heap, capped, in whole MiB
func YoungGenSize(heapBytes int64) string {
	young := heapBytes / 4
	if young > maxYoungGenBytes {
		young = maxYoungGenBytes
	}
	mib := young / units.MiB
	if mib < 1 {
		mib = 1
	}
	return fmt.Sprintf("%dM", mib)
}

// GCLogFlags selects legacy -Xloggc flags on Java 8 and unified -Xlog:gc on
// Java 11. The two families never mix.
func GCLogFlags(java params.JavaVersion) ([]string, error) {
	switch java {
	case params.Java8:
		return []string{
			"-Xloggc:" + GCLogPath,
			"-XX:+PrintGCDetails",
			"-XX:+PrintGCDateStamps",
			"-XX:+PrintHeapAtGC",
			"-XX:+PrintTenuringDistribution",
			"-XX:+PrintGCApplicationStoppedTime",
			"-XX:+PrintPromotionFailure",
			"-XX:+UseGCLogFileRotation",
			"-XX:NumberOfGCLogFiles=10",
			"-XX:GCLogFileSize=10M",
		}, nil
	case params.Java11:
		return []string{
			"-Xlog:gc=info,heap*=trace,age*=debug,safepoint=info,promotion*=trace:file=" + GCLogPath +
				":time,uptime,pid,tid,level:filecount=10,filesize=10485760",
		}, nil
	default:
		return nil, derivationErrorf("no gc logging flags for java_version %q", java)
	}
}

// VersionFlags are the runtime flags of the active jvm<N>-server.options
// file. They never include heap, GC or GC logging flags, which live only in
// jvm-server.options.
func VersionFlags(java params.JavaVersion) ([]string, error) {
	switch java {
	case params.Java8:
		return []string{
			"-XX:ThreadPriorityPolicy=42",
			"-XX:+UseStringDeduplication",
		}, nil
	case params.Java11:
		return []string{
			"-Djdk.attach.allowAttachSelf=true",
			"--add-exports java.base/jdk.internal.misc=ALL-UNNAMED",
			"--add-exports java.base/jdk.internal.ref=ALL-UNNAMED",
			"--add-exports java.base/sun.nio.ch=ALL-UNNAMED",
			"--add-exports java.management.rmi/com.sun.jmx.remote.internal.rmi=ALL-UNNAMED",
			"--add-exports java.rmi/sun.rmi.registry=ALL-UNNAMED",
			"--add-exports java.rmi/sun.rmi.server=ALL-UNNAMED",
			"--add-exports java.sql/java.sql=ALL-UNNAMED",
			"--add-opens java.base/java.lang.module=ALL-UNNAMED",
			"--add-opens java.base/jdk.internal.loader=ALL-UNNAMED",
			"--add-opens java.base/jdk.internal.ref=ALL-UNNAMED",
			"--add-opens java.base/jdk.internal.reflect=ALL-UNNAMED",
			"--add-opens java.base/jdk.internal.math=ALL-UNNAMED",
			"--add-opens java.base/jdk.internal.module=ALL-UNNAMED",
			"--add-opens java.base/jdk.internal.util.jar=ALL-UNNAMED",
			"--add-opens jdk.management/com.sun.management.internal=ALL-UNNAMED",
			"-Dio.netty.tryReflectionSetAccessible=true",
		}, nil
	default:
		return nil, derivationErrorf("no runtime flags for java_version %q", java)
	}
}
