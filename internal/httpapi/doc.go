// Package httpapi serves the status and manual-trigger surface: health,
// sync status, check-now, a read-only preview of the source, Prometheus
// metrics and optional pprof.
package httpapi
