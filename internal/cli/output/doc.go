// Package output renders exsim-ctl results as a table, JSON or YAML.
package output
