package nether

import (
	"github.com/drblury/nether/internal/runtime/application"
	"github.com/drblury/nether/internal/runtime/audit"
	"github.com/drblury/nether/internal/runtime/component"
	configpkg "github.com/drblury/nether/internal/runtime/config"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	idspkg "github.com/drblury/nether/internal/runtime/ids"
	jsoncodec "github.com/drblury/nether/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/mediator"
	"github.com/drblury/nether/internal/runtime/message"
	metricspkg "github.com/drblury/nether/internal/runtime/metrics"
	"github.com/drblury/nether/internal/runtime/router"
	"github.com/drblury/nether/internal/runtime/server"
	"github.com/drblury/nether/internal/runtime/stream"
	"github.com/drblury/nether/internal/runtime/transaction"
)

type (
	Config        = configpkg.Config
	ServiceLogger = loggingpkg.ServiceLogger
	LogFields     = loggingpkg.LogFields
	Metrics       = metricspkg.Metrics

	Mediator       = mediator.Mediator
	MediatorOption = mediator.Option
	Context        = mediator.Context
	Observation    = mediator.Observation
	Observer       = mediator.Observer
	ObserverFunc   = mediator.ObserverFunc

	Task                   = mediator.Task
	HandlerFunc            = mediator.HandlerFunc
	HandlerMiddleware      = mediator.HandlerMiddleware
	MiddlewareBuilder      = mediator.MiddlewareBuilder
	MiddlewareRegistration = mediator.MiddlewareRegistration
	TaskInfo               = mediator.TaskInfo
	TaskHooks              = mediator.TaskHooks

	Component      = component.Component
	Capability     = component.Capability
	ComponentState = component.State
	Dispatch       = component.Dispatch
	JoinStream     = component.JoinStream
	HandleFunc     = component.HandleFunc
	BaseComponent  = component.Base
	FuncComponent  = component.Func

	Message       = message.Message
	MessageKind   = message.Kind
	MessageType   = message.Type
	MessageOption = message.Option
	Header        = message.Header
	Command       = message.Command
	Query         = message.Query
	Event         = message.Event
	SuccessEvent  = message.SuccessEvent
	FailureEvent  = message.FailureEvent
	Outcome       = message.Outcome
	StopProducer  = message.StopProducer

	Stream = stream.Stream

	Server              = server.Server
	ServerOption        = server.Option
	StartServer         = server.StartServer
	ServerStarted       = server.ServerStarted
	StartServerFailure  = server.StartServerFailure
	StopServer          = server.StopServer
	ServerStopped       = server.ServerStopped
	StopServerFailure   = server.StopServerFailure
	RegisterView        = server.RegisterView
	ViewRegistered      = server.ViewRegistered
	RegisterViewFailure = server.RegisterViewFailure
	AddView             = server.AddView
	ViewAdded           = server.ViewAdded
	AddViewFailure      = server.AddViewFailure
	AddStatic           = server.AddStatic
	StaticAdded         = server.StaticAdded
	AddStaticFailure    = server.AddStaticFailure

	Router        = router.Router
	RouteInfo     = router.RouteInfo
	StaticOptions = router.StaticOptions

	TransactionManager = transaction.Manager
	TransactionScope   = transaction.Scope

	Application = application.Application
	MainFunc    = application.MainFunc

	AuditLog    = audit.Log
	AuditRecord = audit.Record

	ConfigValidationError = errspkg.ConfigValidationError
	PanicError            = errspkg.PanicError
)

var (
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ParseConfig    = configpkg.Parse
	ValidateConfig = configpkg.ValidateConfig

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	DiscardLogger        = loggingpkg.Discard

	NewMetrics = metricspkg.New

	NewMediator        = mediator.New
	WithMiddlewares    = mediator.WithMiddlewares
	WithMetrics        = mediator.WithMetrics
	WithObserver       = mediator.WithObserver
	WithStreamCapacity = mediator.WithStreamCapacity

	DefaultMiddlewares  = mediator.DefaultMiddlewares
	RecovererMiddleware = mediator.RecovererMiddleware
	TracerMiddleware    = mediator.TracerMiddleware
	MetricsMiddleware   = mediator.MetricsMiddleware
	LogTasksMiddleware  = mediator.LogTasksMiddleware
	TaskHooksMiddleware = mediator.TaskHooksMiddleware

	Accepts         = component.Accepts
	AcceptsMessages = component.AcceptsMessages
	NewBase         = component.NewBase
	NewComponent    = component.New

	NewCommand      = message.NewCommand
	NewQuery        = message.NewQuery
	NewEvent        = message.NewEvent
	NewSuccess      = message.NewSuccess
	NewFailure      = message.NewFailure
	NewStopProducer = message.NewStopProducer
	WithCreator     = message.WithCreator
	WithTime        = message.WithTime
	OutcomeOf       = message.OutcomeOf
	ErrorOf         = message.ErrorOf

	NewStream = stream.New

	NewServer          = server.New
	WithServerMetrics  = server.WithMetrics
	NewStartServer     = server.NewStartServer
	NewStopServer      = server.NewStopServer
	NewRegisterView    = server.NewRegisterView
	NewAddView         = server.NewAddView
	NewAddStatic       = server.NewAddStatic
	NewRouter          = router.New
	StaticHandler      = router.StaticHandler
	RouteResourceKey   = router.ResourceKey
	NewTransactionPool = transaction.NewManager

	NewApplication = application.New

	NewAuditLog           = audit.New
	NewAuditLogWithPubSub = audit.NewWithPubSub

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	NewID = idspkg.New

	ErrMediatorRequired       = errspkg.ErrMediatorRequired
	ErrComponentRequired      = errspkg.ErrComponentRequired
	ErrComponentNotRegistered = errspkg.ErrComponentNotRegistered
	ErrComponentNotComparable = errspkg.ErrComponentNotComparable
	ErrMessageRequired        = errspkg.ErrMessageRequired
	ErrContextClosed          = errspkg.ErrContextClosed
	ErrStreamStopped          = errspkg.ErrStreamStopped
	ErrInvalidPath            = errspkg.ErrInvalidPath
	ErrHandlerRequired        = errspkg.ErrHandlerRequired
	ErrServerRunning          = errspkg.ErrServerRunning
	ErrServerNotRunning       = errspkg.ErrServerNotRunning
	ErrInvalidPort            = errspkg.ErrInvalidPort
	ErrPoolNotInitialized     = errspkg.ErrPoolNotInitialized
	ErrScopeFinished          = errspkg.ErrScopeFinished
	ErrConfigRequired         = errspkg.ErrConfigRequired
	ErrLoggerRequired         = errspkg.ErrLoggerRequired
)

// NeverMatch is the capability of components that only produce messages.
var NeverMatch = component.NeverMatch

const (
	DefaultHost = configpkg.DefaultHost
	DefaultPort = configpkg.DefaultPort

	KindCommand = message.KindCommand
	KindQuery   = message.KindQuery
	KindEvent   = message.KindEvent

	OutcomeNone    = message.OutcomeNone
	OutcomeSuccess = message.OutcomeSuccess
	OutcomeFailure = message.OutcomeFailure

	StateCreated = component.StateCreated
	StateStarted = component.StateStarted
	StateRunning = component.StateRunning
	StateStopped = component.StateStopped

	StopProducerType = message.StopProducerType

	StartServerType         = server.StartServerType
	ServerStartedType       = server.ServerStartedType
	StartServerFailureType  = server.StartServerFailureType
	StopServerType          = server.StopServerType
	ServerStoppedType       = server.ServerStoppedType
	StopServerFailureType   = server.StopServerFailureType
	RegisterViewType        = server.RegisterViewType
	ViewRegisteredType      = server.ViewRegisteredType
	RegisterViewFailureType = server.RegisterViewFailureType
	AddViewType             = server.AddViewType
	ViewAddedType           = server.ViewAddedType
	AddViewFailureType      = server.AddViewFailureType
	AddStaticType           = server.AddStaticType
	StaticAddedType         = server.StaticAddedType
	AddStaticFailureType    = server.AddStaticFailureType

	LevelTrace    = loggingpkg.LevelTrace
	LevelCritical = loggingpkg.LevelCritical
)
