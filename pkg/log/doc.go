/*
Package log provides structured logging for cassnode using zerolog.

A single global Logger is configured once by the CLI through Init. Packages
derive child loggers that carry the fields operators filter on:

	log.WithComponent("catalog")      // component=catalog
	log.WithRunID(runID)              // run_id=<uuid>
	log.WithArtifact(l, id, kind)     // artifact=file:/etc/... kind=file

The helpers return a zerolog.Logger value; assign it before logging:

	logger := log.WithComponent("apply")
	logger.Warn().Err(err).Msg("Failed to record run")

Until Init is called the Logger discards everything, so library code and
tests can log freely without configuring output.

# Output

Console output (default) is meant for an operator watching a convergence
run; JSON output (--log-json) is meant for shipping to a log pipeline:

	{"level":"info","run_id":"...","artifact":"service:cassandra","kind":"service","message":"artifact changed"}

# Secrets

Nothing in this package redacts. Callers that log commands or errors that
may contain credentials must pass them through types.Redact first; the
reconciler does this for every exec artifact.
*/
package log
