// Package model defines the data structures shared by the store, the
// facade and the CLI.
//
// # Record
//
// A [Record] is a schemaless document:
//
//	rec := model.Record{
//	    "sequenceId":  1,
//	    "link":        "room-42",
//	    "messageType": "text",
//	    "body":        "hello",
//	}
//
// Only the fields named by a key path or an index are interpreted by the
// store; everything else is opaque payload. Records are persisted as JSON,
// so numeric fields come back as float64.
package model
