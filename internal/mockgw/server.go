// Package mockgw implements a development stand-in for the remote gateway.
// It speaks the wire protocol over a WebSocket endpoint: challenge on
// connect, token/password auth, scripted streaming chat, and files.read
// serving a local directory. Client integration tests and the `clawpanel
// mockgw` command run it.
package mockgw

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"clawpanel/internal/gateway"
	"clawpanel/pkg/logger"
)

// ServerVersion is reported in the handshake hello payload.
const ServerVersion = "0.5.0"

// Maximum frame size accepted from a panel.
const maxMessageSize = 4 * 1024 * 1024

// Options configure the mock gateway's behavior.
type Options struct {
	// Token and Password gate the handshake when non-empty. With both
	// empty every connect request is accepted.
	Token    string
	Password string

	// FilesRoot is the directory served through files.read. Empty
	// disables the method.
	FilesRoot string

	// ChatDeltas are streamed for each chat.send before the final event.
	// Each entry is the full accumulated text at that point.
	ChatDeltas []string

	// FinalMessage is the final chat text. Empty echoes the inbound
	// message back.
	FinalMessage string

	// DeltaInterval spaces the scripted deltas.
	DeltaInterval time.Duration

	// SuppressChallenge skips the connect.challenge event, leaving the
	// panel unauthenticated forever. Used to exercise verify timeouts.
	SuppressChallenge bool

	// MuteMethods are request methods the gateway accepts but never
	// answers. Used to exercise request timeouts and disconnects.
	MuteMethods []string
}

// Server is the mock gateway.
type Server struct {
	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New creates a mock gateway serving the protocol on /ws.
func New(opts Options) *Server {
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.serveWS)
	return s
}

// Handler returns the HTTP handler, for tests mounting the server on
// httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the mock gateway on addr.
func (s *Server) ListenAndServe(addr string) error {
	logger.Info().Str("addr", addr).Msg("mock gateway listening")
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  0,
		WriteTimeout: 0,
	}
	return srv.ListenAndServe()
}

// session is one connected panel.
type session struct {
	srv     *Server
	ws      *websocket.Conn
	id      string
	writeMu sync.Mutex
	authed  bool
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("mockgw upgrade failed")
		return
	}

	sess := &session{srv: s, ws: ws, id: uuid.New().String()}
	logger.Debug().Str("conn_id", sess.id).Msg("panel connected")

	if !s.opts.SuppressChallenge {
		sess.send(&gateway.Frame{
			Type:  gateway.FrameTypeEvent,
			Event: gateway.EventConnectChallenge,
		})
	}

	sess.readLoop()
}

func (sess *session) readLoop() {
	defer func() {
		sess.ws.Close()
		logger.Debug().Str("conn_id", sess.id).Msg("panel disconnected")
	}()

	sess.ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame gateway.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Debug().Str("conn_id", sess.id).Msg("mockgw dropping malformed frame")
			continue
		}

		if frame.Type != gateway.FrameTypeRequest {
			continue
		}
		sess.handleRequest(&frame)
	}
}

func (sess *session) handleRequest(frame *gateway.Frame) {
	for _, m := range sess.srv.opts.MuteMethods {
		if frame.Method == m {
			return
		}
	}

	switch frame.Method {
	case gateway.MethodConnect:
		sess.handleConnect(frame)

	case gateway.MethodChatSend:
		if !sess.authed {
			sess.sendError(frame.ID, "NOT_AUTHORIZED", "connect first")
			return
		}
		sess.handleChatSend(frame)

	case gateway.MethodFilesRead:
		if !sess.authed {
			sess.sendError(frame.ID, "NOT_AUTHORIZED", "connect first")
			return
		}
		sess.handleFilesRead(frame)

	default:
		sess.sendError(frame.ID, "METHOD_NOT_FOUND", fmt.Sprintf("unknown method %q", frame.Method))
	}
}

func (sess *session) handleConnect(frame *gateway.Frame) {
	opts := sess.srv.opts

	if opts.Token != "" || opts.Password != "" {
		auth, _ := frame.Params["auth"].(map[string]any)
		token, _ := auth["token"].(string)
		password, _ := auth["password"].(string)

		tokenOK := opts.Token != "" && token == opts.Token
		passwordOK := opts.Password != "" && password == opts.Password
		if !tokenOK && !passwordOK {
			logger.Warn().Str("conn_id", sess.id).Msg("handshake rejected")
			sess.sendError(frame.ID, "NOT_AUTHORIZED", "invalid credentials")
			return
		}
	}

	sess.authed = true
	sess.sendOK(frame.ID, map[string]any{
		"protocol": gateway.ProtocolVersion,
		"server": map[string]any{
			"version": ServerVersion,
			"connId":  sess.id,
		},
	})
	logger.Debug().Str("conn_id", sess.id).Msg("handshake accepted")
}

func (sess *session) handleChatSend(frame *gateway.Frame) {
	message, _ := frame.Params["message"].(string)
	sess.sendOK(frame.ID, map[string]any{"runId": uuid.New().String()})

	opts := sess.srv.opts
	final := opts.FinalMessage
	if final == "" {
		final = message
	}

	go func() {
		for _, delta := range opts.ChatDeltas {
			sess.sendChatEvent(map[string]any{
				"state":   gateway.ChatStateDelta,
				"message": delta,
			})
			if opts.DeltaInterval > 0 {
				time.Sleep(opts.DeltaInterval)
			}
		}
		sess.sendChatEvent(map[string]any{
			"state":   gateway.ChatStateFinal,
			"message": final,
		})
	}()
}

func (sess *session) handleFilesRead(frame *gateway.Frame) {
	root := sess.srv.opts.FilesRoot
	if root == "" {
		sess.sendError(frame.ID, "NOT_FOUND", "file serving disabled")
		return
	}

	path, _ := frame.Params["path"].(string)
	if path == "" {
		sess.sendError(frame.ID, "INVALID_REQUEST", "path is required")
		return
	}

	// Contain reads to the configured root.
	full := filepath.Join(root, filepath.Clean("/"+path))
	data, err := os.ReadFile(full)
	if err != nil {
		sess.sendError(frame.ID, "NOT_FOUND", fmt.Sprintf("read %s: file not found", path))
		return
	}

	sess.sendOK(frame.ID, map[string]any{
		"data": base64.StdEncoding.EncodeToString(data),
	})
}

func (sess *session) sendChatEvent(payload map[string]any) {
	sess.send(&gateway.Frame{
		Type:    gateway.FrameTypeEvent,
		Event:   gateway.EventChat,
		Payload: payload,
	})
}

func (sess *session) sendOK(id string, payload any) {
	ok := true
	sess.send(&gateway.Frame{
		Type:    gateway.FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: payload,
	})
}

func (sess *session) sendError(id, code, message string) {
	ok := false
	sess.send(&gateway.Frame{
		Type: gateway.FrameTypeResponse,
		ID:   id,
		OK:   &ok,
		Error: map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func (sess *session) send(frame *gateway.Frame) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	sess.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := sess.ws.WriteJSON(frame); err != nil {
		logger.Debug().Err(err).Str("conn_id", sess.id).Msg("mockgw write failed")
	}
}
