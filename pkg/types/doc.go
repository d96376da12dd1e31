/*
Package types defines the desired-state model shared by every cassnode package.

An Artifact is one unit of host state: a file with exact bytes, a directory,
an in-place line edit, a pinned package, a service, a local user or group,
or a one-shot command. Artifacts are computed fresh on every run by the
catalog package and are never mutated once built; a run replaces the whole
snapshot.

	file:/etc/cassandra/conf/cassandra.yaml
	package:cassandra
	service:cassandra
	exec:change-cassandra-password

IDs have the form "<kind>:<name>" and are what Requires and Subscribe refer
to. An artifact whose Feature is empty is mandatory: if it fails to
converge, the run fails.

A Report holds one ArtifactResult per artifact. Results are redacted before
they are stored on the report, so a Report can be logged, printed or
persisted as is.
*/
package types
