// Package storage provides the document store backing each shard.
//
// The DocStore interface abstracts a flat keyspace of JSON documents. The
// only implementation, BadgerStore, wraps a Badger key-value database and
// can run either against a directory on disk or fully in memory. Shards
// never share a store: each shard copy owns one DocStore instance, so no
// key prefixing or cross-shard locking is needed at this layer.
//
// Iteration order is the store's key order (lexicographic byte order),
// which callers rely on for deterministic listings.
package storage
