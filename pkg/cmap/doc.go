// Package cmap provides a generic concurrent map split into shards, each
// guarded by its own RWMutex.
//
//	m := cmap.New[domain.SessionID, *Session]()
//	if !m.SetIfAbsent(id, sess) {
//		// already present
//	}
//
// Keys are hashed with murmur3 over their String form when they implement
// fmt.Stringer and over their %v form otherwise, so keys that compare equal
// must also format equally.
package cmap
