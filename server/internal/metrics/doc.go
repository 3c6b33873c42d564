// Package metrics exposes relay counters at GET /metrics in the Prometheus
// text exposition format.
//
// The hub increments counters as it accepts, rejects and relays; gauges for
// connected clients are read from the hub at scrape time through the Live
// interface. Families are built directly as client_model protobufs and
// written with expfmt, without a client registry.
package metrics
