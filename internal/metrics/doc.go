// Package metrics exposes Prometheus counters for the conversation sync engine.
//
// Every method is nil-safe. Pass nil where metrics are disabled.
package metrics
