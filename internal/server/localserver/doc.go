// Package localserver provides the local management server.
//
// It listens on a Unix domain socket and speaks a line protocol: each
// request is one line of space separated words, each response is one JSON
// object on its own line.
//
//	list              all managed objects
//	get <name>        one managed object with its attributes
//	status            process status
//	quit              close the connection
//
// Access is controlled by the socket file permissions (0600).
package localserver
