package localserver

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sudheendrakatikar/exsim/internal/infra/buildinfo"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

// ObjectSource is the read side of the management registry.
type ObjectSource interface {
	List() []management.ObjectInfo
	Describe(name string) (management.ObjectInfo, bool)
	Len() int
}

// Response is one reply line.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Status is the reply to the status command.
type Status struct {
	Build   buildinfo.Info `json:"build"`
	PID     int            `json:"pid"`
	Started time.Time      `json:"started"`
	Uptime  string         `json:"uptime"`
	Objects int            `json:"objects"`
}

// Handler handles local management commands.
type Handler struct {
	src     ObjectSource
	started time.Time
}

// NewHandler creates a Handler reading from src.
func NewHandler(src ObjectSource) *Handler {
	return &Handler{src: src, started: time.Now()}
}

// Execute runs one command line and writes the reply line to w.
func (h *Handler) Execute(w io.Writer, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return writeResponse(w, Response{Error: "empty command"})
	}

	switch cmd := strings.ToLower(args[0]); cmd {
	case "list":
		return writeResponse(w, Response{OK: true, Data: h.src.List()})
	case "get":
		if len(args) != 2 {
			return writeResponse(w, Response{Error: "usage: get <name>"})
		}
		info, ok := h.src.Describe(args[1])
		if !ok {
			return writeResponse(w, Response{Error: "object not found: " + args[1]})
		}
		return writeResponse(w, Response{OK: true, Data: info})
	case "status":
		return writeResponse(w, Response{OK: true, Data: h.Status()})
	default:
		return writeResponse(w, Response{Error: "unknown command: " + cmd})
	}
}

// Status reports build information, uptime and the number of registered
// objects.
func (h *Handler) Status() Status {
	return Status{
		Build:   buildinfo.Get(),
		PID:     os.Getpid(),
		Started: h.started,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Objects: h.src.Len(),
	}
}

func writeResponse(w io.Writer, r Response) error {
	return json.NewEncoder(w).Encode(r)
}
