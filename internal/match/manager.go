// Package match implements the running-match state machine: connection gating,
// scoring, letter-difficulty escalation, timed expiry, victory detection and
// pause/resume on mid-match disconnects.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexset/letterduel/internal/directory"
	"github.com/lexset/letterduel/internal/identity"
	"github.com/lexset/letterduel/internal/letters"
	"github.com/lexset/letterduel/internal/obslog"
	"github.com/lexset/letterduel/internal/words"
	"github.com/lexset/letterduel/pkg/gamedto"
)

var (
	ErrInvalidCode         = errors.New("invalid match code syntax")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchFinished       = errors.New("match already finished")
	ErrSeatForfeited       = errors.New("seat forfeited after the reconnect window")
	ErrNotParticipant      = errors.New("player is not a participant")
	ErrNoParticipants      = errors.New("participant list is empty")
	ErrNotConnectedToMatch = errors.New("player is not connected to a match")
)

// Submission rejection reasons outside the word-validation pipeline.
const (
	reasonNotInProgress  = "MATCH_NOT_IN_PROGRESS"
	reasonPlayerInactive = "PLAYER_NOT_ACTIVE"
)

// Participant is a fixed match entrant, carried over from the lobby roster.
type Participant struct {
	ID          string
	DisplayName string
}

// Broadcaster delivers an event to every transport subscribed to a match.
type Broadcaster interface {
	ToMatch(code string, ev gamedto.Event)
}

type Options struct {
	ReconnectGrace time.Duration // seat-hold window after a disconnect, default 10s
	StartDelay     time.Duration // gap between full connection and the first letters, default 500ms
}

// Manager owns every in-memory match session, keyed by code. A single lock
// serializes all session mutation; timer callbacks re-enter through it, so
// handlers never interleave on the same session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	codes    *directory.Codes
	presence *directory.Presence

	tree  *letters.Tree
	dict  *words.Dictionary
	ident identity.Resolver
	repo  Repository
	bcast Broadcaster

	grace      time.Duration
	startDelay time.Duration
}

func NewManager(codes *directory.Codes, presence *directory.Presence, tree *letters.Tree, dict *words.Dictionary, ident identity.Resolver, repo Repository, bcast Broadcaster, opts Options) *Manager {
	if opts.ReconnectGrace <= 0 {
		opts.ReconnectGrace = 10 * time.Second
	}
	if opts.StartDelay < 0 {
		opts.StartDelay = 500 * time.Millisecond
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		codes:      codes,
		presence:   presence,
		tree:       tree,
		dict:       dict,
		ident:      ident,
		repo:       repo,
		bcast:      bcast,
		grace:      opts.ReconnectGrace,
		startDelay: opts.StartDelay,
	}
}

// CreateMatch validates the roster and settings, reserves a code and builds
// the NOT_STARTED session. The persisted record is written asynchronously.
func (m *Manager) CreateMatch(ctx context.Context, participants []Participant, settings gamedto.Settings) (string, error) {
	if len(participants) == 0 {
		return "", ErrNoParticipants
	}
	if reason := settings.Validate(); reason != "" {
		return "", fmt.Errorf("invalid match settings: %s", reason)
	}

	code, err := m.codes.Generate(directory.MatchCodeLen)
	if err != nil {
		return "", fmt.Errorf("allocate match code: %w", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		Code:     code,
		State:    StateNotStarted,
		Settings: settings,
		stopTick: make(chan struct{}),
	}
	for _, pt := range participants {
		s.Players = append(s.Players, &PlayerState{
			ID:          pt.ID,
			DisplayName: pt.DisplayName,
			Used:        make(map[string]struct{}),
			Conn:        ConnAwaiting,
		})
	}

	m.mu.Lock()
	m.sessions[code] = s
	m.mu.Unlock()

	rec := &Record{
		ID:        s.ID,
		Code:      code,
		State:     StateNotStarted,
		Settings:  settings,
		CreatedAt: time.Now(),
	}
	for _, pt := range participants {
		rec.Participants = append(rec.Participants, pt.ID)
	}
	m.persistAsync("match_record_create", func(pctx context.Context) error {
		return m.repo.CreateMatchRecord(pctx, rec)
	})

	obslog.L().Info("match_create",
		zap.String("match_id", s.ID),
		zap.String("code", code),
		zap.Int("players", len(participants)),
	)
	return s.ID, nil
}

// Connect records a participant's transport-level join. The match starts
// exactly once, when the connected set first covers the whole roster.
func (m *Manager) Connect(ctx context.Context, code, playerID string) error {
	if !gamedto.ValidMatchCode(code) {
		return ErrInvalidCode
	}

	m.mu.Lock()
	s, ok := m.sessions[code]
	if !ok {
		m.mu.Unlock()
		return ErrMatchNotFound
	}
	if s.State.Terminal() {
		m.mu.Unlock()
		return ErrMatchFinished
	}
	p := s.player(playerID)
	if p == nil {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	if p.Conn == ConnLeft {
		// forfeited seats stay forfeited
		m.mu.Unlock()
		return ErrSeatForfeited
	}

	var events []gamedto.Event

	wasPending := p.Conn == ConnPending
	p.cancelGrace()
	p.Conn = ConnConnected
	m.presence.Bind(playerID, code)

	if wasPending && s.State == StatePaused && s.pendingCount() == 0 {
		s.State = StateInProgress
		events = append(events, gamedto.GameResumed{
			Reason:      gamedto.ResumeReasonReconnected,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
		})
		obslog.L().Info("match_resume", zap.String("match_id", s.ID), zap.String("player_id", playerID), zap.String("reason", gamedto.ResumeReasonReconnected))
	}

	if s.State == StateNotStarted && s.connectedCount() == len(s.Players) {
		m.beginLocked(s)
	}
	m.mu.Unlock()

	m.emit(code, events)
	return nil
}

// beginLocked fires the one-time NOT_STARTED → IN_PROGRESS transition.
func (m *Manager) beginLocked(s *Session) {
	s.State = StateInProgress
	s.StartedAt = time.Now()
	s.Elapsed = 0
	for _, p := range s.Players {
		p.Active = true
	}
	s.ticking = true
	go m.tickLoop(s.Code, s.stopTick)

	// Give every participant a beat to finish subscribing before the first
	// letters and snapshot go out.
	code := s.Code
	time.AfterFunc(m.startDelay, func() { m.dealOpeningLetters(code) })

	obslog.L().Info("match_start", zap.String("match_id", s.ID), zap.String("code", s.Code), zap.Int("players", len(s.Players)))
}

func (m *Manager) dealOpeningLetters(code string) {
	m.mu.Lock()
	s, ok := m.sessions[code]
	if !ok || s.State.Terminal() {
		m.mu.Unlock()
		return
	}
	for _, p := range s.Players {
		if p.Letters == "" {
			p.Letters = m.tree.Escalate(letters.Root)
		}
	}
	events := []gamedto.Event{gamedto.GameStarted{MatchID: s.ID}, s.snapshot()}
	m.mu.Unlock()

	m.emit(code, events)
}

// Disconnect handles a participant's transport drop. Mid-match this is a
// first-class transition, never an error: the match pauses and the seat is
// held for the grace window.
func (m *Manager) Disconnect(ctx context.Context, code, playerID string) error {
	m.mu.Lock()
	s, ok := m.sessions[code]
	if !ok {
		m.mu.Unlock()
		return ErrMatchNotFound
	}
	p := s.player(playerID)
	if p == nil {
		m.mu.Unlock()
		return ErrNotParticipant
	}

	m.presence.Unbind(playerID, code)

	var events []gamedto.Event
	switch {
	case s.State.Terminal() || s.State == StateNotStarted:
		if p.Conn == ConnConnected {
			p.Conn = ConnAwaiting
		}
	case p.Conn == ConnConnected && !p.Active:
		// an inactive seat dropping holds no grace and pauses nothing
		p.Conn = ConnLeft
	case p.Conn == ConnConnected:
		p.Conn = ConnPending
		p.GraceDeadline = time.Now().Add(m.grace)
		p.graceTimer = time.AfterFunc(m.grace, func() { m.graceExpired(code, playerID) })
		if s.State == StateInProgress {
			s.State = StatePaused
		}
		events = append(events, gamedto.GamePaused{
			Reason:      gamedto.PauseReasonDisconnect,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
		})
		obslog.L().Info("match_pause", zap.String("match_id", s.ID), zap.String("player_id", playerID))
	}

	events = append(events, m.maybeTeardownLocked(s)...)
	m.mu.Unlock()

	m.emit(code, events)
	return nil
}

// graceExpired forfeits a seat whose reconnection window ran out.
func (m *Manager) graceExpired(code, playerID string) {
	m.mu.Lock()
	s, ok := m.sessions[code]
	if !ok {
		m.mu.Unlock()
		return
	}
	p := s.player(playerID)
	if p == nil || p.Conn != ConnPending {
		// reconnected in time, or already handled
		m.mu.Unlock()
		return
	}

	p.Conn = ConnLeft
	p.Active = false
	p.graceTimer = nil

	var events []gamedto.Event
	if s.State == StatePaused && s.connectedCount() >= 1 && s.pendingCount() == 0 {
		s.State = StateInProgress
		events = append(events, gamedto.GameResumed{
			Reason:      gamedto.ResumeReasonLeft,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
		})
	}
	obslog.L().Info("match_seat_forfeit", zap.String("match_id", s.ID), zap.String("player_id", playerID))

	events = append(events, m.maybeTeardownLocked(s)...)
	m.mu.Unlock()

	m.emit(code, events)
}

// Move validates and scores a word submission for the player's current match.
func (m *Manager) Move(ctx context.Context, playerID, word string) error {
	code, ok := m.presence.Lookup(playerID)
	if !ok {
		return ErrNotConnectedToMatch
	}

	m.mu.Lock()
	s, live := m.sessions[code]
	if !live {
		m.mu.Unlock()
		return ErrMatchNotFound
	}
	p := s.player(playerID)
	if p == nil {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	if s.State != StateInProgress {
		m.mu.Unlock()
		m.emit(code, []gamedto.Event{gamedto.Invalid{By: playerID, Reason: reasonNotInProgress}})
		return nil
	}
	if !p.Active {
		m.mu.Unlock()
		m.emit(code, []gamedto.Event{gamedto.Invalid{By: playerID, Reason: reasonPlayerInactive}})
		return nil
	}

	verdict := m.dict.Validate(word, p.Letters, p.Used)
	if !verdict.OK {
		m.mu.Unlock()
		m.emit(code, []gamedto.Event{gamedto.Invalid{By: playerID, Reason: string(verdict.Reason)}})
		return nil
	}

	p.Points++
	p.Used[verdict.Word] = struct{}{}

	var events []gamedto.Event
	if s.Settings.VictoryThreshold > 0 && p.Points >= s.Settings.VictoryThreshold {
		obslog.L().Info("match_victory_threshold", zap.String("match_id", s.ID), zap.String("player_id", playerID), zap.Int("points", p.Points))
		events = append(events, gamedto.Valid{By: playerID, State: s.snapshot()})
		ended := m.endLocked(s, time.Now())
		m.mu.Unlock()
		if ended != nil {
			m.resolveScores(ended)
			events = append(events, *ended)
		}
		m.emit(code, events)
		return nil
	}

	if freq := s.Settings.LetterAddFrequency; freq > 0 && p.Points >= freq*(p.Escalations+1) {
		p.Escalations++
		for _, q := range s.Players {
			if q.ID == p.ID || !q.Active {
				continue
			}
			q.Letters = m.tree.Escalate(q.Letters)
		}
		obslog.L().Info("match_escalation", zap.String("match_id", s.ID), zap.String("by", playerID), zap.Int("wave", p.Escalations))
	}

	events = append(events, gamedto.Valid{By: playerID, State: s.snapshot()})
	m.mu.Unlock()

	m.emit(code, events)
	return nil
}

// Written mirrors a player's in-progress typing to the session. No validation.
func (m *Manager) Written(ctx context.Context, playerID, text string) error {
	code, ok := m.presence.Lookup(playerID)
	if !ok {
		return ErrNotConnectedToMatch
	}

	m.mu.Lock()
	s, live := m.sessions[code]
	if !live {
		m.mu.Unlock()
		return ErrMatchNotFound
	}
	p := s.player(playerID)
	if p == nil {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	p.Draft = text
	snap := s.snapshot()
	m.mu.Unlock()

	m.emit(code, []gamedto.Event{snap})
	return nil
}

// Get returns the live session for a code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	return s, ok
}

// Close stops every session's timers. In-memory sessions are dropped;
// persisted records are untouched.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, s := range m.sessions {
		m.stopTickLocked(s)
		for _, p := range s.Players {
			p.cancelGrace()
		}
		delete(m.sessions, code)
		m.codes.Release(code)
	}
}

func (m *Manager) tickLoop(code string, stop <-chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.tick(code)
		}
	}
}

func (m *Manager) tick(code string) {
	m.mu.Lock()
	s, ok := m.sessions[code]
	if !ok || s.State != StateInProgress {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	s.Elapsed = int(now.Sub(s.StartedAt).Seconds())

	var ended *gamedto.GameEnded
	if s.Elapsed >= s.Settings.MatchDurationMs/1000 {
		ended = m.endLocked(s, now)
	}
	m.mu.Unlock()

	if ended == nil {
		return
	}
	m.resolveScores(ended)
	m.emit(code, []gamedto.Event{*ended})
}

// endLocked drives the terminal COMPLETED transition: deactivates players,
// selects the winner, schedules persistence and builds the result event.
// Display names are left empty; the caller resolves them with resolveScores
// after releasing the lock.
func (m *Manager) endLocked(s *Session, now time.Time) *gamedto.GameEnded {
	if s.State.Terminal() {
		return nil
	}
	s.State = StateCompleted
	if !s.StartedAt.IsZero() {
		s.Elapsed = int(now.Sub(s.StartedAt).Seconds())
	}
	m.stopTickLocked(s)

	winnerID := ""
	if w := s.winner(); w != nil {
		winnerID = w.ID
	}

	scores := make([]gamedto.PlayerScore, 0, len(s.Players))
	for _, p := range s.Players {
		p.Active = false
		p.cancelGrace()
		scores = append(scores, gamedto.PlayerScore{PlayerID: p.ID, Points: p.Points})
	}

	matchID := s.ID
	m.persistAsync("match_record_complete", func(pctx context.Context) error {
		return m.repo.UpdateMatchState(pctx, matchID, StateCompleted, winnerID, now)
	})

	obslog.L().Info("match_end",
		zap.String("match_id", s.ID),
		zap.String("winner", winnerID),
		zap.Int("elapsed_sec", s.Elapsed),
	)
	return &gamedto.GameEnded{
		MatchID:        s.ID,
		ElapsedSeconds: s.Elapsed,
		Winner:         winnerID,
		Scores:         scores,
	}
}

// resolveScores fills the scoreboard's display names. Runs without the
// manager lock so a slow identity backend never stalls other sessions;
// resolution is bounded and falls back to placeholders.
func (m *Manager) resolveScores(ev *gamedto.GameEnded) {
	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	for i := range ev.Scores {
		ev.Scores[i].DisplayName = m.ident.ResolveDisplayName(rctx, ev.Scores[i].PlayerID)
	}
}

// maybeTeardownLocked evicts the session once nobody is connected and no
// reconnect is pending. A non-terminal session is marked ABANDONED first.
func (m *Manager) maybeTeardownLocked(s *Session) []gamedto.Event {
	if s.connectedCount() > 0 || s.pendingCount() > 0 {
		return nil
	}
	if _, live := m.sessions[s.Code]; !live {
		return nil
	}

	m.stopTickLocked(s)
	if !s.State.Terminal() {
		s.State = StateAbandoned
		for _, p := range s.Players {
			p.Active = false
		}
		matchID := s.ID
		now := time.Now()
		m.persistAsync("match_record_abandon", func(pctx context.Context) error {
			return m.repo.UpdateMatchState(pctx, matchID, StateAbandoned, "", now)
		})
		obslog.L().Info("match_abandoned", zap.String("match_id", s.ID))
	}

	delete(m.sessions, s.Code)
	m.codes.Release(s.Code)
	obslog.L().Info("match_evicted", zap.String("match_id", s.ID), zap.String("code", s.Code))
	return nil
}

func (m *Manager) stopTickLocked(s *Session) {
	if s.ticking {
		close(s.stopTick)
		s.ticking = false
	}
}

// persistAsync runs a repository write off the hot path. Failure is logged
// and swallowed: in-memory state stays authoritative.
func (m *Manager) persistAsync(op string, fn func(ctx context.Context) error) {
	if m.repo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			obslog.L().Error("persist_error", zap.String("op", op), zap.Error(err))
		}
	}()
}

func (m *Manager) emit(code string, events []gamedto.Event) {
	if m.bcast == nil {
		return
	}
	for _, ev := range events {
		m.bcast.ToMatch(code, ev)
	}
}
