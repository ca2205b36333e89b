package command

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sudheendrakatikar/exsim/internal/cli/connection"
	"github.com/sudheendrakatikar/exsim/internal/cli/output"
	"github.com/sudheendrakatikar/exsim/internal/infra/buildinfo"
	"github.com/sudheendrakatikar/exsim/internal/server/config"
	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "exsim-ctl",
		Usage:   "inspect a running exsim acceptor",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List registered objects",
				Action:  list,
			},
			{
				Name:      "get",
				Usage:     "Show the attributes of one object",
				ArgsUsage: "<name>",
				Action:    get,
			},
			{
				Name:   "status",
				Usage:  "Show process status",
				Action: status,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "management socket path",
			EnvVars: []string{"EXSIM_MANAGEMENT_SOCKET"},
			Value:   config.DefaultSocket,
		},
		&cli.StringFlag{
			Name:    "http",
			Usage:   "management HTTP address; overrides --socket",
			EnvVars: []string{"EXSIM_CTL_HTTP"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show all columns",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// session bundles what every command needs.
type session struct {
	client    connection.Client
	formatter output.Formatter
	format    output.Format
	out       io.Writer
	ctx       context.Context
	cancel    context.CancelFunc
}

func newSession(c *cli.Context) (*session, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}

	var client connection.Client
	if addr := c.String("http"); addr != "" {
		client = connection.NewHTTPClient(addr)
	} else {
		client = connection.NewSocketClient(c.String("socket"))
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	return &session{
		client:    client,
		formatter: output.NewFormatter(format, c.Bool("wide")),
		format:    format,
		out:       c.App.Writer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *session) close() {
	s.cancel()
	s.client.Close()
}

func list(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	objects, err := s.client.List(s.ctx)
	if err != nil {
		return err
	}
	return s.formatter.Format(s.out, objects)
}

func get(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: exsim-ctl get <name>", 2)
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	info, err := s.client.Get(s.ctx, c.Args().First())
	if err != nil {
		return err
	}
	if s.format != output.FormatTable {
		return s.formatter.Format(s.out, info)
	}
	return objectTable(info).Render(s.out)
}

func status(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	st, err := s.client.Status(s.ctx)
	if err != nil {
		return err
	}
	if s.format != output.FormatTable {
		return s.formatter.Format(s.out, st)
	}
	return statusTable(st).Render(s.out)
}

// objectTable lists the header fields followed by the attributes in key
// order.
func objectTable(info *management.ObjectInfo) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("name", info.Name)
	t.AddRow("type", info.Type)
	t.AddRow("registered_at", info.RegisteredAt.Local().Format(time.DateTime))

	keys := make([]string, 0, len(info.Attributes))
	for k := range info.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AddRow(k, attributeValue(info.Attributes[k]))
	}
	return t
}

func attributeValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case []any:
		if len(v) == 0 {
			return "-"
		}
		s := fmt.Sprint(v[0])
		for _, e := range v[1:] {
			s += "," + fmt.Sprint(e)
		}
		return s
	default:
		return fmt.Sprint(v)
	}
}

func statusTable(st *localserver.Status) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("version", st.Build.Version)
	t.AddRow("commit", st.Build.Commit)
	t.AddRow("go", st.Build.GoVersion)
	t.AddRow("pid", fmt.Sprint(st.PID))
	t.AddRow("started", st.Started.Local().Format(time.DateTime))
	t.AddRow("uptime", st.Uptime)
	t.AddRow("objects", fmt.Sprint(st.Objects))
	return t
}
