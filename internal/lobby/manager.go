// Package lobby implements the pre-match staging area: code-based rooms with a
// mutable roster, readiness tracking, admin-controlled settings and idle
// eviction. A lobby whose players are all ready hands its roster off to the
// match engine and stops being joinable.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lexset/letterduel/internal/directory"
	"github.com/lexset/letterduel/internal/obslog"
	"github.com/lexset/letterduel/pkg/gamedto"
	"go.uber.org/zap"
)

var (
	ErrInvalidCode      = errors.New("invalid lobby code syntax")
	ErrLobbyNotFound    = errors.New("lobby not found")
	ErrNotAdmin         = errors.New("caller is not the lobby admin")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
)

// SettingsError carries the field-specific range-violation reason.
type SettingsError struct{ Reason string }

func (e SettingsError) Error() string { return "invalid game settings: " + e.Reason }

// Player is one roster entry.
type Player struct {
	ID          string
	DisplayName string
	Ready       bool
}

// Lobby is a staging room. Roster order is join order and is preserved into
// the match participant order.
type Lobby struct {
	Code         string
	Admin        string
	Players      []*Player
	Settings     gamedto.Settings
	LastActiveAt time.Time
}

// Broadcaster delivers events to everyone subscribed to a lobby, or to one
// player.
type Broadcaster interface {
	ToLobby(code string, ev gamedto.Event)
	ToPlayer(playerID string, ev gamedto.Event)
}

// Participant is the fixed identity handed to the match engine at start.
type Participant struct {
	ID          string
	DisplayName string
}

// MatchStarter creates a match from a finalized roster. Implemented by the
// match manager.
type MatchStarter interface {
	StartMatch(ctx context.Context, participants []Participant, settings gamedto.Settings) (matchID string, err error)
}

// GuestNames persists a guest's chosen display name, best effort.
type GuestNames interface {
	SaveGuestName(ctx context.Context, playerID, name string)
}

// Manager owns every active lobby, keyed by code.
type Manager struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby

	codes   *directory.Codes
	starter MatchStarter
	guests  GuestNames
	bcast   Broadcaster

	idleLimit  time.Duration
	sweepEvery time.Duration
}

type Options struct {
	IdleLimit  time.Duration // empty-lobby eviction age, default 30m
	SweepEvery time.Duration // reaper interval, default 1m
}

func NewManager(codes *directory.Codes, starter MatchStarter, guests GuestNames, bcast Broadcaster, opts Options) *Manager {
	if opts.IdleLimit <= 0 {
		opts.IdleLimit = 30 * time.Minute
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = time.Minute
	}
	return &Manager{
		lobbies:    make(map[string]*Lobby),
		codes:      codes,
		starter:    starter,
		guests:     guests,
		bcast:      bcast,
		idleLimit:  opts.IdleLimit,
		sweepEvery: opts.SweepEvery,
	}
}

// Create opens a new lobby with the host as admin. The host is not placed on
// the roster: admins join explicitly like everyone else.
func (m *Manager) Create(ctx context.Context, hostID, hostName string) (string, error) {
	code, err := m.codes.Generate(directory.LobbyCodeLen)
	if err != nil {
		return "", fmt.Errorf("allocate lobby code: %w", err)
	}

	lb := &Lobby{
		Code:         code,
		Admin:        hostID,
		Settings:     gamedto.DefaultSettings(),
		LastActiveAt: time.Now(),
	}

	m.mu.Lock()
	m.lobbies[code] = lb
	m.mu.Unlock()

	obslog.L().Info("lobby_create", zap.String("code", code), zap.String("admin", hostID))
	m.bcast.ToPlayer(hostID, gamedto.LobbyCreated{Code: code})
	return code, nil
}

// Join adds a player to the roster. Re-joining is a no-op on the roster but
// still refreshes presence and re-broadcasts state.
func (m *Manager) Join(ctx context.Context, code, playerID, name string) error {
	if err := m.checkCode(code, playerID); err != nil {
		return err
	}

	m.mu.Lock()
	lb, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	if lb.player(playerID) == nil {
		lb.Players = append(lb.Players, &Player{ID: playerID, DisplayName: name})
	}
	lb.LastActiveAt = time.Now()
	state := lb.snapshot()
	m.mu.Unlock()

	// Persist the chosen name against the guest identity without holding up
	// the join; failures are logged inside the store.
	if m.guests != nil {
		go m.guests.SaveGuestName(context.WithoutCancel(ctx), playerID, name)
	}

	obslog.L().Info("lobby_join", zap.String("code", lb.Code), zap.String("player_id", playerID))
	m.bcast.ToPlayer(playerID, gamedto.JoinedLobby{Code: lb.Code, Players: state.Players, Admin: lb.Admin})
	m.bcast.ToLobby(lb.Code, state)
	return nil
}

// SetReady marks the player ready and runs the edge-triggered auto-start
// check: all ready and roster size at least two starts the match.
func (m *Manager) SetReady(ctx context.Context, code, playerID string) error {
	return m.setReady(ctx, code, playerID, true)
}

// SetUnready clears the player's ready flag.
func (m *Manager) SetUnready(ctx context.Context, code, playerID string) error {
	return m.setReady(ctx, code, playerID, false)
}

func (m *Manager) setReady(ctx context.Context, code, playerID string, ready bool) error {
	if err := m.checkCode(code, playerID); err != nil {
		return err
	}

	m.mu.Lock()
	lb, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	p := lb.player(playerID)
	if p == nil {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	p.Ready = ready
	lb.LastActiveAt = time.Now()
	state := lb.snapshot()
	shouldStart := ready && lb.allReady() && len(lb.Players) >= 2
	m.mu.Unlock()

	m.bcast.ToLobby(lb.Code, state)
	if shouldStart {
		return m.start(ctx, lb)
	}
	return nil
}

// SetSettings replaces the lobby settings. Admin only; each field is
// range-checked and the first violation rejects the whole update.
func (m *Manager) SetSettings(ctx context.Context, code, playerID string, s gamedto.Settings) error {
	if err := m.checkCode(code, playerID); err != nil {
		return err
	}

	m.mu.Lock()
	lb, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	if lb.Admin != playerID {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.NotAdmin{Code: code})
		return ErrNotAdmin
	}
	if reason := s.Validate(); reason != "" {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.InvalidGameSettings{Code: code, Reason: reason})
		return SettingsError{Reason: reason}
	}
	lb.Settings = s
	lb.LastActiveAt = time.Now()
	state := lb.snapshot()
	m.mu.Unlock()

	obslog.L().Info("lobby_settings",
		zap.String("code", lb.Code),
		zap.Int("duration_ms", s.MatchDurationMs),
		zap.Int("letter_add_freq", s.LetterAddFrequency),
		zap.Int("victory_threshold", s.VictoryThreshold),
	)
	m.bcast.ToLobby(lb.Code, state)
	return nil
}

// StartGame is the explicit admin-triggered start.
func (m *Manager) StartGame(ctx context.Context, code, playerID string) error {
	if err := m.checkCode(code, playerID); err != nil {
		return err
	}

	m.mu.Lock()
	lb, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	if lb.Admin != playerID {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.NotAdmin{Code: code})
		return ErrNotAdmin
	}
	if len(lb.Players) < 2 {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.NotEnoughPlayers{Code: code})
		return ErrNotEnoughPlayers
	}
	m.mu.Unlock()
	return m.start(ctx, lb)
}

// Leave removes the player from the roster.
func (m *Manager) Leave(ctx context.Context, code, playerID string) error {
	if err := m.checkCode(code, playerID); err != nil {
		return err
	}

	m.mu.Lock()
	lb, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	idx := -1
	for i, p := range lb.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		m.bcast.ToPlayer(playerID, gamedto.LobbyNotFound{Code: code})
		return ErrLobbyNotFound
	}
	lb.Players = append(lb.Players[:idx], lb.Players[idx+1:]...)
	lb.LastActiveAt = time.Now()
	state := lb.snapshot()
	m.mu.Unlock()

	obslog.L().Info("lobby_leave", zap.String("code", lb.Code), zap.String("player_id", playerID))
	m.bcast.ToLobby(lb.Code, state)
	return nil
}

// Get returns the lobby for a code, if active.
func (m *Manager) Get(code string) (*Lobby, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lb, ok := m.lobbies[code]
	return lb, ok
}

// StartReaper runs the idle sweep until ctx is cancelled: lobbies with an
// empty roster older than the idle limit are evicted and their codes released.
func (m *Manager) StartReaper(ctx context.Context) {
	go func() {
		t := time.NewTicker(m.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.sweep(time.Now())
			}
		}
	}()
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	var evicted []string
	for code, lb := range m.lobbies {
		if len(lb.Players) == 0 && now.Sub(lb.LastActiveAt) > m.idleLimit {
			delete(m.lobbies, code)
			evicted = append(evicted, code)
		}
	}
	m.mu.Unlock()

	for _, code := range evicted {
		m.codes.Release(code)
		obslog.L().Info("lobby_reaped", zap.String("code", code))
	}
}

func (m *Manager) start(ctx context.Context, lb *Lobby) error {
	m.mu.Lock()
	if _, live := m.lobbies[lb.Code]; !live {
		// already handed off by a concurrent ready edge
		m.mu.Unlock()
		return nil
	}
	participants := make([]Participant, 0, len(lb.Players))
	for _, p := range lb.Players {
		participants = append(participants, Participant{ID: p.ID, DisplayName: p.DisplayName})
	}
	settings := lb.Settings
	delete(m.lobbies, lb.Code)
	m.mu.Unlock()

	matchID, err := m.starter.StartMatch(ctx, participants, settings)
	if err != nil {
		obslog.L().Error("lobby_start_error", zap.String("code", lb.Code), zap.Error(err))
		// roster stays dissolved; callers can re-create a lobby
		m.codes.Release(lb.Code)
		return fmt.Errorf("start match: %w", err)
	}

	m.codes.Release(lb.Code)
	obslog.L().Info("lobby_start_game", zap.String("code", lb.Code), zap.String("match_id", matchID), zap.Int("players", len(participants)))
	m.bcast.ToLobby(lb.Code, gamedto.GameStarted{MatchID: matchID})
	return nil
}

// checkCode validates code syntax, emitting the rejection event on failure.
// Lobby lookup happens inside each operation's critical section: a concurrent
// start can dissolve the lobby at any point, so a lookup outside the mutating
// section would hand back a stale pointer.
func (m *Manager) checkCode(code, playerID string) error {
	if !gamedto.ValidLobbyCode(code) {
		m.bcast.ToPlayer(playerID, gamedto.InvalidLobbyCode{Code: code})
		return ErrInvalidCode
	}
	return nil
}

func (l *Lobby) player(id string) *Player {
	for _, p := range l.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (l *Lobby) allReady() bool {
	for _, p := range l.Players {
		if !p.Ready {
			return false
		}
	}
	return len(l.Players) > 0
}

// snapshot builds the lobby_state event under the manager lock.
func (l *Lobby) snapshot() gamedto.LobbyState {
	players := make([]gamedto.LobbyPlayer, 0, len(l.Players))
	for _, p := range l.Players {
		players = append(players, gamedto.LobbyPlayer{PlayerID: p.ID, DisplayName: p.DisplayName, Ready: p.Ready})
	}
	return gamedto.LobbyState{Code: l.Code, Players: players, Admin: l.Admin, Settings: l.Settings}
}
