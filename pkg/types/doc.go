// Package types defines the shared domain model of the playbook engine:
// playbooks and their action sequences, the tag vocabulary and pairwise
// similarity records, execution traces, transient match artifacts, and the
// closed error-kind set.
//
// Metric arithmetic (EMA updates, usage-weighted merges) lives here as pure
// functions over PlaybookMetrics so it can be tested independently of any
// storage or engine component.
package types
