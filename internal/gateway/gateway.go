// Package gateway is the thin websocket delivery surface for the session
// core: it decodes inbound events into typed requests, routes them to the
// lobby and match managers, and fans outbound events back to subscribers.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/lexset/letterduel/internal/lobby"
	"github.com/lexset/letterduel/internal/match"
	"github.com/lexset/letterduel/internal/obslog"
	"github.com/lexset/letterduel/pkg/gamedto"
)

const (
	writeTimeout = 3 * time.Second
	sendBuffer   = 16
)

type client struct {
	playerID  string
	conn      *websocket.Conn
	send      chan []byte
	matchCode string
}

// Gateway routes requests to the managers and delivers their events.
type Gateway struct {
	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]struct{} // session code -> player ids

	lobbies *lobby.Manager
	matches *match.Manager
}

func New() *Gateway {
	return &Gateway{
		conns: make(map[string]*client),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Attach wires the managers after construction; the gateway is handed to the
// managers as their broadcaster first, so wiring is two-phase.
func (g *Gateway) Attach(lobbies *lobby.Manager, matches *match.Manager) {
	g.lobbies = lobbies
	g.matches = matches
}

// ToLobby implements lobby.Broadcaster.
func (g *Gateway) ToLobby(code string, ev gamedto.Event) { g.toRoom(code, ev) }

// ToMatch implements match.Broadcaster.
func (g *Gateway) ToMatch(code string, ev gamedto.Event) { g.toRoom(code, ev) }

// ToPlayer implements the direct half of lobby.Broadcaster.
func (g *Gateway) ToPlayer(playerID string, ev gamedto.Event) {
	g.mu.RLock()
	c := g.conns[playerID]
	g.mu.RUnlock()
	if c != nil {
		c.enqueue(marshalEvent(ev))
	}
}

func (g *Gateway) toRoom(code string, ev gamedto.Event) {
	payload := marshalEvent(ev)
	g.mu.RLock()
	var targets []*client
	for pid := range g.rooms[code] {
		if c := g.conns[pid]; c != nil {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(payload)
	}
}

// Handler accepts websocket connections at GET /ws. The player identity comes
// from the playerId query parameter; anonymous connections get a guest id.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := strings.TrimSpace(r.URL.Query().Get("playerId"))
		if playerID == "" {
			playerID = "guest-" + uuid.NewString()
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{playerID: playerID, conn: conn, send: make(chan []byte, sendBuffer)}
		g.register(c)
		defer g.unregister(c)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go c.writeLoop(writeCtx)

		obslog.L().Info("ws_connect", zap.String("player_id", playerID))
		g.readLoop(r.Context(), c)
	}
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			obslog.L().Debug("ws_closed", zap.String("player_id", c.playerID), zap.Error(err))
			return
		}
		req, err := gamedto.ParseRequest(raw)
		if err != nil {
			obslog.L().Warn("ws_bad_request", zap.String("player_id", c.playerID), zap.Error(err))
			continue
		}
		g.dispatch(ctx, c, req)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *client, req gamedto.Request) {
	pid := c.playerID
	switch r := req.(type) {
	case *gamedto.CreateLobby:
		if code, err := g.lobbies.Create(ctx, pid, r.DisplayName); err == nil {
			g.subscribe(pid, code)
		}
	case *gamedto.JoinLobby:
		if err := g.lobbies.Join(ctx, r.Code, pid, r.DisplayName); err == nil {
			g.subscribe(pid, r.Code)
		}
	case *gamedto.Ready:
		_ = g.lobbies.SetReady(ctx, r.Code, pid)
	case *gamedto.Unready:
		_ = g.lobbies.SetUnready(ctx, r.Code, pid)
	case *gamedto.SetGameSettings:
		_ = g.lobbies.SetSettings(ctx, r.Code, pid, r.Settings)
	case *gamedto.LeaveLobby:
		if err := g.lobbies.Leave(ctx, r.Code, pid); err == nil {
			g.unsubscribe(pid, r.Code)
		}
	case *gamedto.StartGame:
		_ = g.lobbies.StartGame(ctx, r.Code, pid)
	case *gamedto.JoinMatch:
		g.subscribe(pid, r.Code)
		if err := g.matches.Connect(ctx, r.Code, pid); err != nil {
			g.unsubscribe(pid, r.Code)
			obslog.L().Warn("match_join_rejected", zap.String("player_id", pid), zap.String("code", r.Code), zap.Error(err))
			return
		}
		g.mu.Lock()
		c.matchCode = r.Code
		g.mu.Unlock()
	case *gamedto.Move:
		_ = g.matches.Move(ctx, pid, r.Word)
	case *gamedto.Written:
		_ = g.matches.Written(ctx, pid, r.Text)
	}
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.conns[c.playerID] = c
	g.mu.Unlock()
}

func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	if g.conns[c.playerID] != c {
		// a newer socket already took over this player id; its subscriptions
		// and match binding win, so the stale close must not touch them
		g.mu.Unlock()
		return
	}
	delete(g.conns, c.playerID)
	for code, members := range g.rooms {
		delete(members, c.playerID)
		if len(members) == 0 {
			delete(g.rooms, code)
		}
	}
	matchCode := c.matchCode
	g.mu.Unlock()

	if matchCode != "" {
		// Mid-match drops are a state-machine transition, not an error.
		_ = g.matches.Disconnect(context.Background(), matchCode, c.playerID)
	}
	obslog.L().Info("ws_disconnect", zap.String("player_id", c.playerID))
}

func (g *Gateway) subscribe(playerID, code string) {
	g.mu.Lock()
	members, ok := g.rooms[code]
	if !ok {
		members = make(map[string]struct{})
		g.rooms[code] = members
	}
	members[playerID] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) unsubscribe(playerID, code string) {
	g.mu.Lock()
	if members, ok := g.rooms[code]; ok {
		delete(members, playerID)
		if len(members) == 0 {
			delete(g.rooms, code)
		}
	}
	g.mu.Unlock()
}

func (c *client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		// slow consumer: drop the frame rather than stall the session
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.send:
			if payload == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

type outbound struct {
	Type string        `json:"type"`
	Data gamedto.Event `json:"data"`
}

func marshalEvent(ev gamedto.Event) []byte {
	payload, err := json.Marshal(outbound{Type: ev.EventName(), Data: ev})
	if err != nil {
		obslog.L().Error("event_marshal_error", zap.String("event", ev.EventName()), zap.Error(err))
		return nil
	}
	return payload
}
