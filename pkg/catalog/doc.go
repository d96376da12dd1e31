/*
Package catalog builds the desired state of a Cassandra node as an ordered
list of artifacts.

Build runs the pure half of a convergence run: parameters are validated,
host facts are merged with the overrides from the parameter file, the
feature set is computed once, derived values are computed and every managed
file is rendered to its exact bytes. The result is a Catalog whose
Artifacts slice is already in apply order:

	repository file
	java package (java_package)
	cassandra package
	group, user
	data directories
	configuration files, jamm jar, check-versions.sh
	sysctl, apply-sysctl, limits (os_tuning)
	swapoff, fstab (swap)
	cassandra service
	range-repair script, unit, daemon-reload, service (range_repair)
	password rotation (credential_rotation)

Artifacts of a disabled feature are not part of the catalog. Every Requires
and Subscribe edge points to an artifact earlier in the list, so a single
forward pass of the reconciler honours all of them.
*/
package catalog
