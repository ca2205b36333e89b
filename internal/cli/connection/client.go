package connection

import (
	"context"

	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

// Client reads the management registry of a running exsim.
type Client interface {
	List(ctx context.Context) ([]management.ObjectInfo, error)
	Get(ctx context.Context, name string) (*management.ObjectInfo, error)
	Status(ctx context.Context) (*localserver.Status, error)
	Close() error
}

var (
	_ Client = (*SocketClient)(nil)
	_ Client = (*HTTPClient)(nil)
)
