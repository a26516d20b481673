// Package storage provides SQLite persistence for the playbook engine.
//
// Three tables back the engine's state:
//
//   - playbooks: the corpus. Structured fields (actions, tags, type tag
//     confidences, stakeholders, source learnings) are stored as JSON text
//     columns; metrics are flat columns so the curator can query on them.
//   - tag_vocabulary: named type tags with keyword lists and discovery
//     provenance.
//   - tag_similarity: one row per unordered tag pair, keyed (tag1, tag2)
//     with tag1 < tag2 enforced by a CHECK constraint. Upserts are scoped to
//     the pair key, which bounds concurrent-writer races to a single pair.
//
// The package compiles against either SQLite driver: modernc.org/sqlite by
// default (pure Go, CGO-free cross compilation) or mattn/go-sqlite3 under
// the cgo_sqlite build tag. Schema changes ship as semver-ordered
// migrations applied on open.
//
// Single-process deployments get strongly consistent reads; the engine
// assumes nothing stronger (see the similarity registry's cache
// discipline).
package storage
