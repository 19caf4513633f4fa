// Package ws is the websocket transport: HELLO/WELCOME handshake, then
// commands in and RESULT/TICK out. The transport validates shape and version
// only; all game rules live behind the scheduler's command queue.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/catalogs"
	"echoraid.gg/internal/sim/scheduler"
	"echoraid.gg/internal/sim/tuning"
)

type Server struct {
	sched     *scheduler.Scheduler
	cfg       tuning.Tuning
	abilities *catalogs.Abilities
	log       *log.Logger

	nextClient atomic.Uint64
	upgrader   websocket.Upgrader
}

func NewServer(sched *scheduler.Scheduler, cfg tuning.Tuning, abilities *catalogs.Abilities, logger *log.Logger) *Server {
	return &Server{
		sched:     sched,
		cfg:       cfg,
		abilities: abilities,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID, results := s.handshake(conn)
		if clientID == "" {
			return
		}
		ticks := s.sched.Subscribe(clientID)
		defer s.sched.Unsubscribe(clientID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: RESULTs take priority over tick frames.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case res := <-results:
					if err := writeJSON(conn, res); err != nil {
						cancel()
						return
					}
				case b, ok := <-ticks:
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
				return
			}
			s.route(msg, results)
		}
	}
}

// route translates one inbound frame into a scheduler command. Malformed
// frames answer with a RESULT instead of killing the connection.
func (s *Server) route(msg []byte, results chan protocol.ResultMsg) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		replyError(results, "", protocol.ErrProtoBadRequest, "unparseable frame")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		replyError(results, "", protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}

	var cmd scheduler.Command
	switch base.Type {
	case protocol.TypeArm:
		var m protocol.ArmMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			replyError(results, "", protocol.ErrProtoBadRequest, "bad ARM")
			return
		}
		cmd = scheduler.Command{Kind: scheduler.CmdArm, Ref: m.Ref, ArenaID: m.ArenaID, CharacterID: m.CharacterID}
	case protocol.TypeFinalize, protocol.TypeCancel:
		var m protocol.SessionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			replyError(results, "", protocol.ErrProtoBadRequest, "bad session message")
			return
		}
		kind := scheduler.CmdFinalize
		if base.Type == protocol.TypeCancel {
			kind = scheduler.CmdCancel
		}
		cmd = scheduler.Command{Kind: kind, Ref: m.Ref, ArenaID: m.ArenaID}
	case protocol.TypeInput:
		var m protocol.InputMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			replyError(results, "", protocol.ErrProtoBadRequest, "bad INPUT")
			return
		}
		cmd = scheduler.Command{Kind: scheduler.CmdInput, ArenaID: m.ArenaID, Input: m.Input}
	default:
		replyError(results, "", protocol.ErrProtoBadRequest, "unknown message type")
		return
	}

	cmd.Reply = results
	if err := s.sched.Enqueue(cmd); err != nil {
		replyError(results, cmd.Ref, protocol.ErrInternal, "command queue full")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (clientID string, results chan protocol.ResultMsg) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}

	clientID = fmt.Sprintf("W%06d", s.nextClient.Add(1))
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        clientID,
		Params: protocol.SimParams{
			TickRateHz:  s.cfg.TickRateHz,
			LoopSeconds: s.cfg.LoopSeconds,
			GridWidth:   s.cfg.GridWidth,
			GridHeight:  s.cfg.GridHeight,
			MaxGhosts:   s.cfg.MaxGhostsPerArena,
			Seed:        s.cfg.Seed,
		},
		Arenas:          s.sched.ArenaRefs(),
		AbilitiesDigest: s.abilities.Digest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return clientID, make(chan protocol.ResultMsg, maxQ)
}

func replyError(results chan protocol.ResultMsg, ref, code, message string) {
	msg := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              false,
		Code:            code,
		Message:         message,
	}
	select {
	case results <- msg:
	default:
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
