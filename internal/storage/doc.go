// Package storage provides message stores for exsim sessions.
//
// A message store keeps the sequence-number state of one FIX session:
//
//   - BadgerStoreFactory: state persisted in a KV, one record per session
//     keyed by a murmur3 digest of the session ID and updated in a single
//     read-modify-write transaction
//   - MemoryStoreFactory: process-lifetime state for tests and setups
//     without FileStorePath
//
// Badger is the KV implementation. It runs value log GC periodically and
// exports its size and GC counters as a prometheus.Collector.
package storage
