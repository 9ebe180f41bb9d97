package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/lib/stats"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/ValentinKolb/dGate/rpc/serializer"
	"github.com/ValentinKolb/dGate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// Version is reported by ping, the cmd package sets it to the release version
var Version = "dev"

// requiredRoles is the role every message type requires. Message types
// without an entry are rejected.
var requiredRoles = map[common.MessageType]string{
	common.MsgTRegisterCategory: auth.RoleRegisterCategory,
	common.MsgTPrepareStatement: auth.RolePrepareStatement,
	common.MsgTQueryExecute:     auth.RoleRead,
	common.MsgTGetMore:          auth.RoleRead,
	common.MsgTWriteExecute:     auth.RoleWrite,
	common.MsgTPurge:            auth.RolePurge,
	common.MsgTSaveFile:         auth.RoleSaveFile,
	common.MsgTLoadFile:         auth.RoleLoadFile,
	common.MsgTGenerateToken:    auth.RoleCmdChannelGen,
	common.MsgTVerifyToken:      auth.RoleCmdChannelVerify,
	common.MsgTPing:             auth.RoleLogin,
}

var requestsDenied = stats.Counter("dgate_requests_denied_total")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
// The components are built from the config when the server starts
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(users),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return NewRPCServerWith(config, transport, serializer, nil)
}

// NewRPCServerWith creates a server around existing components. Nil
// components are built from the config when the server starts.
// The request handler is registered with the transport right away.
func NewRPCServerWith(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	components *Components,
) *rpcServer {
	s := &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		components: components,
		adapters:   make(map[common.MessageType]IRPCServerAdapter),
	}
	for _, adapter := range []IRPCServerAdapter{
		NewStatementServerAdapter(),
		NewFileServerAdapter(),
		NewTokenServerAdapter(),
		&pingServerAdapter{},
	} {
		for _, t := range adapter.MessageTypes() {
			s.adapters[t] = adapter
		}
	}
	if transport != nil {
		transport.RegisterHandler(s.handle)
	}
	return s
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	components *Components
	adapters   map[common.MessageType]IRPCServerAdapter
}

// handle decodes a request, checks the role of the caller and lets the
// responsible adapter answer it
func (s *rpcServer) handle(req transport.Request) ([]byte, common.Status) {
	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req.Body, &msg); err != nil {
		resp = common.NewErrorResponse(common.StatusBadRequest, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		resp = s.dispatch(Call{Msg: &msg, Principal: req.Principal, SessionID: req.SessionID})
	}

	stats.Counter(fmt.Sprintf(`dgate_requests_total{type=%q,status=%q}`, msg.MsgType, resp.Status)).Inc()

	// Status is not part of the serialized message
	status := resp.Status
	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(common.StatusInternal, fmt.Sprintf("failed to serialize response: %s", err)))
		return val, common.StatusInternal
	}
	return val, status
}

// dispatch runs the role check and the adapter of the message type
func (s *rpcServer) dispatch(call Call) *common.Message {
	role, ok := requiredRoles[call.Msg.MsgType]
	adapter, known := s.adapters[call.Msg.MsgType]
	if !ok || !known {
		return common.NewErrorResponse(common.StatusBadRequest,
			fmt.Sprintf("unsupported message type: %s", call.Msg.MsgType))
	}

	if !call.Principal.HasRole(role) {
		return forbidden("%s lacks role %s for %s", call.Principal, role, call.Msg.MsgType)
	}

	if s.components == nil {
		return unavailable()
	}
	return adapter.Handle(call, s.components)
}

func (s *rpcServer) init() error {
	// Init logger
	if err := common.InitLoggers(s.config); err != nil {
		return err
	}

	if s.components == nil {
		components, err := NewComponents(s.config)
		if err != nil {
			return fmt.Errorf("failed to create components: %w", err)
		}
		s.components = components
	}

	stats.StartReporter(s.config.StatsInterval, logger.GetLogger("stats"))

	Logger.Infof("dGate setup completed successfully")

	return nil
}

// Serve starts the RPC server
// This function will also initialize the components and start the transport layer.
// It returns after SIGINT or SIGTERM once queued writes are drained.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	listenErr := make(chan error, 1)
	go func() { listenErr <- s.transport.Listen(s.config) }()

	select {
	case err := <-listenErr:
		return errors.Join(err, s.components.Close())
	case sig := <-sigs:
		Logger.Infof("received %s, shutting down", sig)
		return s.Shutdown()
	}
}

// Shutdown stops the transport and releases all components
func (s *rpcServer) Shutdown() error {
	timeout := s.config.DrainTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	err := s.transport.Shutdown(ctx)
	if s.components != nil {
		err = errors.Join(err, s.components.Close())
	}
	return err
}

// --------------------------------------------------------------------------
// Ping
// --------------------------------------------------------------------------

type pingServerAdapter struct{}

func (adapter *pingServerAdapter) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTPing}
}

func (adapter *pingServerAdapter) Handle(_ Call, c *Components) *common.Message {
	return common.NewPingResponse(statecache.SharedStateId{ServerToken: c.ServerToken}, c.Version)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// unavailable answers a request whose component is missing
func unavailable() *common.Message {
	return common.NewErrorResponse(common.StatusUnavailable, "service unavailable")
}

// forbidden answers a request the caller is not allowed to make
func forbidden(format string, args ...any) *common.Message {
	requestsDenied.Inc()
	msg := fmt.Sprintf(format, args...)
	Logger.Warningf("denied: %s", msg)
	return common.NewErrorResponse(common.StatusForbidden, msg)
}
