// Package buildinfo exposes the version of the running binary.
//
// Version, Commit and BuildTime are injected with ldflags:
//
//	go build -ldflags "-X github.com/sudheendrakatikar/exsim/internal/infra/buildinfo.Version=v1.0.0"
//
// When Commit is not injected it is taken from the VCS stamp the Go
// toolchain embeds in module builds.
package buildinfo
