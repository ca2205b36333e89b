// Package command defines the exsim-ctl commands.
//
// exsim-ctl reads the management registry of a running exsim over the
// local unix socket, or over the HTTP API when --http is given:
//
//	exsim-ctl list
//	exsim-ctl get <name>
//	exsim-ctl status
package command
