package render

import "text/template"

// cassandraYAML is the node configuration. Only keys derived from parameters
// are templated; the rest are the stock 4.x production values.
var cassandraYAML = template.Must(template.New("cassandra.yaml").Parse(`# {{ .Header }}
cluster_name: {{ .ClusterName }}
{{- if .Values.StartRPC }}
num_tokens: 256
{{- else }}
num_tokens: 16
allocate_tokens_for_local_replication_factor: 3
{{- end }}
hinted_handoff_enabled: true
max_hint_window_in_ms: 10800000
hinted_handoff_throttle_in_kb: 1024
max_hints_delivery_threads: 2
hints_directory: {{ .Params.HintsDirectory }}
authenticator: PasswordAuthenticator
authorizer: CassandraAuthorizer
role_manager: CassandraRoleManager
partitioner: org.apache.cassandra.dht.Murmur3Partitioner
data_file_directories:
    - {{ .Params.DataDirectory }}
commitlog_directory: {{ .Params.CommitlogDirectory }}
saved_caches_directory: {{ .Params.SavedCachesDirectory }}
disk_failure_policy: stop
commit_failure_policy: stop
commitlog_sync: periodic
commitlog_sync_period_in_ms: 10000
commitlog_segment_size_in_mb: 32
seed_provider:
    - class_name: org.apache.cassandra.locator.SimpleSeedProvider
      parameters:
          - seeds: "{{ .Seeds }}"
concurrent_reads: 32
concurrent_writes: 32
concurrent_counter_writes: 32
memtable_allocation_type: heap_buffers
listen_address: {{ .ListenAddress }}
rpc_address: {{ .ListenAddress }}
storage_port: 7000
ssl_storage_port: 7001
start_native_transport: true
native_transport_port: 9042
{{- if .Values.StartRPC }}
start_rpc: true
rpc_port: 9160
{{- end }}
incremental_backups: false
snapshot_before_compaction: false
auto_snapshot: true
column_index_size_in_kb: 64
compaction_throughput_mb_per_sec: 64
read_request_timeout_in_ms: 5000
range_request_timeout_in_ms: 10000
write_request_timeout_in_ms: 2000
request_timeout_in_ms: 10000
endpoint_snitch: GossipingPropertyFileSnitch
`))

var jvmServerOptions = template.Must(template.New("jvm-server.options").Parse(`# {{ .Header }}
# Active JVM options for Cassandra {{ .Params.CassandraVersion }} on Java {{ .Params.JavaVersion }}.
# Version specific runtime flags live in {{ .Values.ActiveOptionsPath }}.

-ea
-da:net.openhft...
-XX:+UseThreadPriorities
-XX:+HeapDumpOnOutOfMemoryError
-Xss256k
-XX:+AlwaysPreTouch
-XX:+UseTLAB
-XX:+ResizeTLAB
-XX:+UseNUMA
-XX:+PerfDisableSharedMem
-Djava.net.preferIPv4Stack=true

### heap
{{ range .Values.HeapFlags }}{{ . }}
{{ end }}
### {{ .Params.GCType }}
{{ range .Values.GCFlags }}{{ . }}
{{ end }}
### GC logging
{{ range .Values.GCLogFlags }}{{ . }}
{{ end -}}
{{ if .Values.ReplaceAddressFlag }}
### node replacement
{{ .Values.ReplaceAddressFlag }}
{{ end -}}
`))

var activeVersionOptions = template.Must(template.New("jvm-version.options").Parse(`# {{ .Header }}
# Runtime flags for Java {{ .Java }}. Heap and GC flags live in jvm-server.options.

{{ range .Flags }}{{ . }}
{{ end -}}
`))

var neutralizedVersionOptions = template.Must(template.New("jvm-neutralized.options").Parse(`# {{ .Header }}
{{ .Marker }}
# This host runs Java {{ .ActiveJava }}; options for Java {{ .Java }} are intentionally empty.
`))

var rackDC = template.Must(template.New("cassandra-rackdc.properties").Parse(`# {{ .Header }}
dc={{ .Datacenter }}
rack={{ .Rack }}
prefer_local=true
`))

var yumRepo = template.Must(template.New("apache-cassandra.repo").Parse(`# {{ .Header }}
[{{ .RepoID }}]
name=Apache Cassandra
baseurl={{ .BaseURL }}
gpgcheck=1
repo_gpgcheck=1
gpgkey={{ .GPGKey }}
enabled=1
`))

var limitsConf = template.Must(template.New("limits.conf").Parse(`# {{ .Header }}
{{ .User }} - memlock unlimited
{{ .User }} - nofile 100000
{{ .User }} - nproc 32768
{{ .User }} - as unlimited
`))

var sysctlConf = template.Must(template.New("sysctl.conf").Parse(`# {{ .Header }}
vm.max_map_count = 1048575
vm.swappiness = 1
net.ipv4.tcp_keepalive_time = 60
net.ipv4.tcp_keepalive_probes = 3
net.ipv4.tcp_keepalive_intvl = 10
net.core.rmem_max = 16777216
net.core.wmem_max = 16777216
net.core.rmem_default = 16777216
net.core.wmem_default = 16777216
net.core.optmem_max = 40960
net.ipv4.tcp_rmem = 4096 87380 16777216
net.ipv4.tcp_wmem = 4096 65536 16777216
`))

var checkVersionsScript = template.Must(template.New("check-versions.sh").Parse(`#!/bin/bash
# {{ .Header }}
# Compares installed Cassandra and Java versions with the desired ones.
# Exits non-zero when either differs.
set -u

want_cassandra="{{ .CassandraVersion }}"
want_java="{{ .Java }}"
status=0

have_cassandra=$(rpm -q --queryformat '%{VERSION}-%{RELEASE}' cassandra 2>/dev/null || echo absent)
echo "cassandra: installed=${have_cassandra} desired=${want_cassandra}"
if [ "${have_cassandra}" != "${want_cassandra}" ]; then
    status=1
fi

have_java=$(java -version 2>&1 | awk -F '"' '/version/ {print $2}')
case "${have_java}" in
    1.8.*) have_major=8 ;;
    "") have_major=absent ;;
    *) have_major=${have_java%%.*} ;;
esac
echo "java: installed=${have_java:-absent} major=${have_major} desired=${want_java}"
if [ "${have_major}" != "${want_java}" ]; then
    status=1
fi

if command -v nodetool >/dev/null 2>&1; then
    echo "nodetool: $(nodetool version 2>/dev/null || echo unavailable)"
fi

exit ${status}
`))

var rangeRepairUnit = template.Must(template.New("range-repair.service").Parse(`# {{ .Header }}
[Unit]
Description=Cassandra Range Repair Service
After=cassandra.service
Requires=cassandra.service

[Service]
Type=simple
User={{ .User }}
Group={{ .User }}
ExecStart={{ .Script }}
Restart=on-failure
RestartSec=300

[Install]
WantedBy=multi-user.target
`))

var rangeRepairScript = template.Must(template.New("range-repair.sh").Parse(`#!/bin/bash
# {{ .Header }}
# Repairs the primary token ranges of every non-system keyspace, one
# keyspace at a time, then sleeps until the next round.
set -u

interval="${RANGE_REPAIR_INTERVAL:-86400}"

while true; do
    for dir in {{ .DataDirectory }}/*/; do
        keyspace=$(basename "${dir}")
        case "${keyspace}" in
            system*) continue ;;
        esac
        echo "repairing ${keyspace}"
        nodetool repair -pr "${keyspace}" || echo "repair of ${keyspace} failed"
    done
    sleep "${interval}"
done
`))
