// Package drafts owns the per-admin draft lifecycle: creating and
// superseding drafts, merging incoming content into them, and freezing a
// draft while it is being broadcast.
//
// All mutations for one admin run under that admin's lock, so the store's
// one-draft-per-admin rule is never raced from inside the process. Admins
// never block each other.
package drafts
