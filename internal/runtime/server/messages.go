package server

import (
	"fmt"
	"net/http"
	"strings"

	errspkg "github.com/drblury/nether/internal/runtime/errors"
	"github.com/drblury/nether/internal/runtime/message"
	"github.com/drblury/nether/internal/runtime/router"
)

const (
	StartServerType        message.Type = "server.StartServer"
	ServerStartedType      message.Type = "server.ServerStarted"
	StartServerFailureType message.Type = "server.StartServerFailure"

	StopServerType        message.Type = "server.StopServer"
	ServerStoppedType     message.Type = "server.ServerStopped"
	StopServerFailureType message.Type = "server.StopServerFailure"

	RegisterViewType        message.Type = "server.RegisterView"
	ViewRegisteredType      message.Type = "server.ViewRegistered"
	RegisterViewFailureType message.Type = "server.RegisterViewFailure"

	AddViewType        message.Type = "server.AddView"
	ViewAddedType      message.Type = "server.ViewAdded"
	AddViewFailureType message.Type = "server.AddViewFailure"

	AddStaticType        message.Type = "server.AddStatic"
	StaticAddedType      message.Type = "server.StaticAdded"
	AddStaticFailureType message.Type = "server.AddStaticFailure"
)

// StartServer asks the server to listen on Host:Port.
type StartServer struct {
	message.Command
	Host string
	Port int
}

func (StartServer) Type() message.Type { return StartServerType }

// Validate checks the port range.
func (m StartServer) Validate() error {
	if m.Port <= 0 || m.Port > 65535 {
		return fmt.Errorf("%w: %d", errspkg.ErrInvalidPort, m.Port)
	}
	return nil
}

// NewStartServer builds a validated StartServer.
func NewStartServer(host string, port int, opts ...message.Option) (StartServer, error) {
	m := StartServer{Command: message.NewCommand(opts...), Host: strings.TrimSpace(host), Port: port}
	if err := m.Validate(); err != nil {
		return StartServer{}, err
	}
	return m, nil
}

// ServerStarted reports the address the server listens on.
type ServerStarted struct {
	message.SuccessEvent
	Addr string
}

func (ServerStarted) Type() message.Type { return ServerStartedType }

type StartServerFailure struct{ message.FailureEvent }

func (StartServerFailure) Type() message.Type { return StartServerFailureType }

// StopServer asks the server to shut down gracefully.
type StopServer struct{ message.Command }

func (StopServer) Type() message.Type { return StopServerType }

func NewStopServer(opts ...message.Option) StopServer {
	return StopServer{message.NewCommand(opts...)}
}

type ServerStopped struct{ message.SuccessEvent }

func (ServerStopped) Type() message.Type { return ServerStoppedType }

type StopServerFailure struct{ message.FailureEvent }

func (StopServerFailure) Type() message.Type { return StopServerFailureType }

// RegisterView mounts View on Route. An empty Methods list accepts every method.
type RegisterView struct {
	message.Command
	Route   string
	View    http.Handler
	Methods []string
}

func (RegisterView) Type() message.Type { return RegisterViewType }

func NewRegisterView(route string, view http.Handler, methods ...string) RegisterView {
	return RegisterView{Command: message.NewCommand(), Route: route, View: view, Methods: methods}
}

type ViewRegistered struct {
	message.SuccessEvent
	Route string
}

func (ViewRegistered) Type() message.Type { return ViewRegisteredType }

type RegisterViewFailure struct{ message.FailureEvent }

func (RegisterViewFailure) Type() message.Type { return RegisterViewFailureType }

// AddView mounts a single-method handler on Route.
type AddView struct {
	message.Command
	Route   string
	Method  string
	Handler http.HandlerFunc
}

func (AddView) Type() message.Type { return AddViewType }

func NewAddView(method, route string, handler http.HandlerFunc) AddView {
	return AddView{Command: message.NewCommand(), Route: route, Method: method, Handler: handler}
}

type ViewAdded struct {
	message.SuccessEvent
	Route string
}

func (ViewAdded) Type() message.Type { return ViewAddedType }

type AddViewFailure struct{ message.FailureEvent }

func (AddViewFailure) Type() message.Type { return AddViewFailureType }

// AddStatic serves the files below Path under Prefix.
type AddStatic struct {
	message.Command
	Prefix  string
	Path    string
	Options router.StaticOptions
}

func (AddStatic) Type() message.Type { return AddStaticType }

func NewAddStatic(prefix, path string, opts router.StaticOptions) AddStatic {
	return AddStatic{Command: message.NewCommand(), Prefix: prefix, Path: path, Options: opts}
}

type StaticAdded struct {
	message.SuccessEvent
	Prefix string
}

func (StaticAdded) Type() message.Type { return StaticAddedType }

type AddStaticFailure struct{ message.FailureEvent }

func (AddStaticFailure) Type() message.Type { return AddStaticFailureType }
