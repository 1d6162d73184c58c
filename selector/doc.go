// Package selector describes which records a query-state entry holds.
//
// A Selector wraps a parsed SELECT statement and is compared structurally through its
// canonical text; Parameters are the ordered arguments bound into it. Together they form
// the identity of a cached query.
package selector
