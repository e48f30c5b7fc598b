package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dshnews.game/internal/protocol"
)

// bot drives a running server through a fixed script, waiting for the
// session to go idle between steps.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		script = flag.String("script", "NEW_GAME,INTERACT:newsroom_desk,TELEPORT:newsroom_exit,VALUE:1:2.5,SAVE", "comma separated ACTION[:target[:amount]] steps")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	steps, err := parseScript(*script)
	if err != nil {
		logger.Fatalf("script: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	next := 0
	waiting := "" // ref of the request in flight
	send := func(req protocol.RequestMsg) {
		waiting = req.Ref
		if err := conn.WriteJSON(req); err != nil {
			logger.Fatalf("send %s: %v", req.Action, err)
		}
	}
	poll := func() {
		time.Sleep(50 * time.Millisecond)
		send(newRequest(fmt.Sprintf("poll_%d", time.Now().UnixNano()), protocol.ActionStatus, "", 0, 0))
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w struct {
				SessionID string `json:"session_id"`
				Status    status `json:"status"`
			}
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s location=%s state=%s", w.SessionID, w.Status.Location, w.Status.State)
			poll()

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("EVENT %s location=%s from=%s save=%s", ev.Kind, ev.Location, ev.From, ev.SaveID)

		case protocol.TypeResult:
			var res struct {
				Ref     string `json:"ref"`
				OK      bool   `json:"ok"`
				Code    string `json:"code"`
				Message string `json:"message"`
				Status  status `json:"status"`
			}
			if err := json.Unmarshal(msg, &res); err != nil || res.Ref != waiting {
				continue
			}
			if !strings.HasPrefix(res.Ref, "poll_") {
				logger.Printf("RESULT %s ok=%v code=%s %s", res.Ref, res.OK, res.Code, res.Message)
			}
			if res.Status.State != "IDLE" {
				poll()
				continue
			}
			if next == len(steps) {
				logger.Printf("script done at %s", res.Status.Location)
				return
			}
			st := steps[next]
			next++
			send(newRequest(fmt.Sprintf("step_%d", next), st.action, st.target, st.index, st.amount))
		}
	}
}

type status struct {
	Location string `json:"location"`
	State    string `json:"state"`
}

type step struct {
	action string
	target string
	index  int
	amount float64
}

func newRequest(ref, action, target string, index int, amount float64) protocol.RequestMsg {
	return protocol.RequestMsg{
		Type:            protocol.TypeRequest,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		Action:          action,
		Target:          target,
		Index:           index,
		Amount:          amount,
	}
}

// parseScript reads "ACTION[:target]" steps; VALUE takes "VALUE:index:amount".
func parseScript(s string) ([]step, error) {
	var out []step
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		st := step{action: strings.ToUpper(parts[0])}
		if !protocol.IsKnownAction(st.action) {
			return nil, fmt.Errorf("unknown action %q", parts[0])
		}
		if st.action == protocol.ActionValue {
			if len(parts) != 3 {
				return nil, fmt.Errorf("%q: want VALUE:index:amount", raw)
			}
			idx, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("%q: %w", raw, err)
			}
			amt, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", raw, err)
			}
			st.index, st.amount = idx, amt
		} else if len(parts) > 1 {
			st.target = parts[1]
		}
		out = append(out, st)
	}
	return out, nil
}
