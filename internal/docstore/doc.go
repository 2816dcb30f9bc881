// Package docstore is an embedded document database modelled on IndexedDB.
//
// A Factory opens named, versioned databases under one data directory. Each
// Database holds object stores of JSON records keyed by an inline key path
// or out-of-line keys, optionally auto-incremented, with secondary indexes
// kept in step on every write. All reads and writes go through a
// Transaction scoped to a set of stores; schema changes happen only in the
// upgrade callback passed to Factory.Open.
//
// Keys are numbers or strings, encoded so that byte order matches key
// order. Failures wrap the sentinel errors in this package;
// ErrorName maps them to their code names.
package docstore
