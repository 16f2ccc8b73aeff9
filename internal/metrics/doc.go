// Package metrics exposes esplink's Prometheus collectors.
//
// Collectors are registered on an injected prometheus.Registerer so tests
// and embedders can use a private registry. *Metrics implements the small
// Metrics interfaces declared by the correlator, command and ingest
// packages. All methods are safe on a nil *Metrics.
package metrics
