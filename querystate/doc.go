// Package querystate keeps the results of selector queries in memory, one shared entry
// per distinct (selector, parameters) pair, and lets consumers observe and edit them.
//
// An entry moves through an explicit state machine:
//
//	Idle ──fetch──▶ Loading ──▶ Ready
//	                   │
//	                   └──────▶ Failed
//
// Entries are reference counted by Store.Get and Store.Release. At most one fetch per
// entry is in flight; a fetch that resolves after its entry was released or reloaded
// is discarded. Local edits (Append, ReplaceAt, ReplaceByID) are only allowed while
// the entry is Ready and are applied in the order they are called.
//
// Items projected from an entry carry a SelfRef, which re-locates its record by
// identity on every write so that edits to other items never redirect it.
package querystate
