// Package chatdb is the storage facade for single-chat message history.
//
// Each Facade method runs one transaction against one object store of a
// caller-owned *docstore.Database, logs the outcome and returns the store's
// error unchanged. Match errors with errors.Is against the docstore
// sentinels (docstore.ErrConstraint, docstore.ErrData, ...).
//
// Messages live in the "singleChat" store, keyed by an auto-incrementing
// "sequenceId" and indexed by sequenceId (unique), link and messageType.
package chatdb
