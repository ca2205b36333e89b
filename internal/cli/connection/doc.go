// Package connection provides the exsim-ctl clients for the management
// endpoints: the unix socket line protocol and the HTTP API.
package connection
