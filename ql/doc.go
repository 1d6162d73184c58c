// Package ql models the record store's query language.
//
// It covers the subset the query-state layer sends over the wire: SELECT with
// WHERE/ORDER BY/LIMIT/FETCH, UPDATE ... MERGE and CREATE ... CONTENT. Queries are
// parsed into an AST and rendered back into a canonical text form; the canonical
// text is what travels to the server and what identifies a query in caches.
//
//	q, err := ql.Parse("SELECT * FROM item WHERE done = false FETCH img")
//	if err != nil {
//		var perr *ql.ParseError
//		errors.As(err, &perr) // perr.Pos points at the offending token
//	}
//	fmt.Println(q.String())
//
// Equality is structural, not semantic: "a AND b" and "b AND a" are different queries.
package ql
