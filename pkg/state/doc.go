// Package state defines the persistence contract for configuration trees.
//
// A Store loads and saves one whole tree (map[string]any) per Ref together
// with storage-owned Meta. Save treats Meta.ETag as the expected current tag
// and fails with ErrETagMismatch when the stored document moved on; an empty
// ETag skips the check. Stores compute and return the new ETag.
//
// Resolver layers a stored tree over a template of defaults:
//
//	Store.Load -> tree.MergeLayers(user, template) -> resolved tree
package state
