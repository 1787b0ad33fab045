// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface. Resolver instances never persist their
// node table, so this is the only implementation.
package inmemorystore
