// Package management keeps the registry of managed objects.
//
// Every acceptor registers itself here under a unique object name of the
// form <domain>:type=Connector,role=Acceptor,id=<ULID>. The local socket
// server and the HTTP server read the registry to list objects and their
// attributes. Objects that are Prometheus collectors are published to the
// metrics registry for as long as they stay registered.
package management
