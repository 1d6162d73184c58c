// Package sqlstore is an in-process record server backed by SQLite.
//
// It implements transport.Transport directly, so a session can run against it without
// a network: records are JSON documents addressed by table:key, query text is parsed
// with package ql and compiled to parameterized SQL, MERGE is a JSON merge patch and
// sign-in mints a signed token the same way a remote server would.
//
// Statement failures come back as ERR result sets, the way a remote server reports
// them; only failures of the database itself surface as transport errors.
package sqlstore
