// Package api exposes a small inspect/health/metrics HTTP surface
// alongside the CLI: health checks, golden-record/xref inspection, and
// a metrics snapshot of the last Pipeline run. It does not duplicate the
// CLI's batch-processing or rollback operations.
package api
