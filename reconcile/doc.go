// Package reconcile sends local changes to the server and splices the server's answer
// back into the query state they came from.
//
// Writes are confirm-then-apply: nothing in the local list changes until the server
// has answered, and a failed write leaves the list exactly as it was. An update
// re-runs the owning selector for the one record in the same round trip; when the
// record no longer matches, it is dropped from the list instead of refreshed.
package reconcile
