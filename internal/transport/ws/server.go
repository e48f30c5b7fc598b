package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/protocol"
	"dshnews.game/internal/sim/game"
	"dshnews.game/internal/sim/scene"
)

// Server exposes a game session as a control websocket: clients send
// REQUESTs and receive RESULTs plus pushed EVENTs.
type Server struct {
	sess *game.Session
	log  *log.Logger

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func NewServer(sess *game.Session, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		sess: sess,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Clients reports the number of connected clients.
func (s *Server) Clients() int64 { return s.clients.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sessionID, out, unsubscribe := s.handshake(ctx, conn)
		if sessionID == "" {
			return
		}
		s.clients.Add(1)
		defer s.clients.Add(-1)
		defer unsubscribe()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			res := s.handleMessage(ctx, msg)
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, msg []byte) protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeRequest {
		return failure("", protocol.ErrProtoBadRequest, "expected REQUEST")
	}
	var req protocol.RequestMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return failure("", protocol.ErrProtoBadRequest, err.Error())
	}
	if req.ProtocolVersion != protocol.Version {
		return failure(req.Ref, protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	return s.Dispatch(ctx, req)
}

// Dispatch runs one request on the session goroutine.
func (s *Server) Dispatch(ctx context.Context, req protocol.RequestMsg) protocol.ResultMsg {
	if !protocol.IsKnownAction(req.Action) {
		return failure(req.Ref, protocol.ErrUnknownAction, req.Action)
	}
	var (
		opErr  error
		status game.Status
	)
	err := s.sess.Do(ctx, func() {
		switch req.Action {
		case protocol.ActionNewGame:
			opErr = s.sess.NewGame()
		case protocol.ActionBackToMenu:
			opErr = s.sess.BackToMenu()
		case protocol.ActionTeleport:
			opErr = s.sess.Teleport(req.Target)
		case protocol.ActionInteract:
			opErr = s.sess.Interact(req.Target)
		case protocol.ActionValue:
			opErr = s.sess.AdjustValue(req.Index, req.Amount)
		case protocol.ActionSave:
			if err := s.sess.Save(); err != nil {
				opErr = saveError{err}
			}
		case protocol.ActionLoad:
			s.sess.Load()
		case protocol.ActionStatus:
		}
		status = s.sess.Status()
	})
	if err != nil {
		return failure(req.Ref, protocol.ErrInternal, err.Error())
	}
	if opErr != nil {
		res := failure(req.Ref, codeFor(opErr), opErr.Error())
		res.Status = status
		return res
	}
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             req.Ref,
		OK:              true,
		Status:          status,
	}
}

type saveError struct{ err error }

func (e saveError) Error() string { return "save: " + e.err.Error() }
func (e saveError) Unwrap() error { return e.err }

func codeFor(err error) string {
	var se saveError
	switch {
	case errors.Is(err, game.ErrBusy):
		return protocol.ErrBusy
	case errors.Is(err, game.ErrUnknownPoint):
		return protocol.ErrUnknownPoint
	case errors.Is(err, game.ErrUnknownValue):
		return protocol.ErrUnknownValue
	case errors.As(err, &se):
		return protocol.ErrSaveFailed
	default:
		return protocol.ErrInternal
	}
}

func failure(ref, code, message string) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		Code:            code,
		Message:         message,
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID string, out chan []byte, unsubscribe func()) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil, nil
	}

	out = make(chan []byte, 32)
	want := map[string]bool{}
	for _, k := range hello.Events {
		want[k] = true
	}
	push := func(ev protocol.EventMsg) {
		if len(want) > 0 && !want[ev.Kind] {
			return
		}
		ev.Type = protocol.TypeEvent
		ev.ProtocolVersion = protocol.Version
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		select {
		case out <- b:
		default:
			// Slow client; events are advisory and STATUS recovers the state.
		}
	}

	var (
		status game.Status
		unsubs []func()
	)
	err = s.sess.Do(ctx, func() {
		ev := s.sess.Events()
		coord := s.sess.Coordinator()
		unsubs = append(unsubs,
			ev.Unloading.Subscribe(func(r scene.Request) {
				e := protocol.EventMsg{Kind: protocol.EventLocationUnloading, Location: r.Location.ID}
				if cur := coord.Current(); cur != nil {
					e.From = cur.ID
				}
				push(e)
			}),
			ev.Transitioned.Subscribe(func(e scene.TransitionEntry) {
				push(protocol.EventMsg{Kind: protocol.EventLocationReady, Location: e.To, From: e.From, Category: e.Category, Seq: e.Seq})
			}),
			ev.Saved.Subscribe(func(e savestore.SaveEntry) {
				push(protocol.EventMsg{Kind: protocol.EventSaved, SaveID: e.SaveID, Location: e.Location})
			}),
			ev.Loaded.Subscribe(func(struct{}) {
				push(protocol.EventMsg{Kind: protocol.EventLoaded})
			}),
		)
		status = s.sess.Status()
	})
	if err != nil {
		return "", nil, nil
	}
	unsubscribe = func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.sess.Do(ctx2, func() {
			for _, u := range unsubs {
				u()
			}
		})
	}

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Status:          status,
	}
	if err := writeJSON(conn, welcome); err != nil {
		unsubscribe()
		return "", nil, nil
	}
	s.log.Printf("client %s connected (%s)", sessionID, hello.ClientName)
	return sessionID, out, unsubscribe
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
