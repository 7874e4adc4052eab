package match

import (
	"time"

	"github.com/lexset/letterduel/pkg/gamedto"
)

// State is the match lifecycle state.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StatePaused     State = "PAUSED"
	StateCompleted  State = "COMPLETED"
	StateAbandoned  State = "ABANDONED"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool { return s == StateCompleted || s == StateAbandoned }

// ConnStatus is a participant's transport connection status. Pending
// reconnects live here, on the player, instead of in a side map.
type ConnStatus string

const (
	// ConnAwaiting: participant has not joined the session transport yet.
	ConnAwaiting  ConnStatus = "AWAITING"
	ConnConnected ConnStatus = "CONNECTED"
	// ConnPending: disconnected mid-match, seat held until GraceDeadline.
	ConnPending ConnStatus = "DISCONNECTED_PENDING"
	// ConnLeft: grace window expired, seat forfeited.
	ConnLeft ConnStatus = "LEFT"
)

// PlayerState is one participant's in-match state. Created at match creation
// and never removed, only deactivated.
type PlayerState struct {
	ID          string
	DisplayName string

	Points      int
	Letters     string
	Draft       string
	Used        map[string]struct{}
	Escalations int
	Active      bool

	Conn          ConnStatus
	GraceDeadline time.Time
	graceTimer    *time.Timer
}

func (p *PlayerState) cancelGrace() {
	if p.graceTimer != nil {
		// Stop on an already-fired timer is a no-op.
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
}

// Session is one running match. All mutation goes through the manager, under
// its lock.
type Session struct {
	ID       string
	Code     string
	State    State
	Settings gamedto.Settings
	Players  []*PlayerState

	StartedAt time.Time
	Elapsed   int

	stopTick chan struct{}
	ticking  bool
}

func (s *Session) player(id string) *PlayerState {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) connectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Conn == ConnConnected {
			n++
		}
	}
	return n
}

func (s *Session) pendingCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Conn == ConnPending {
			n++
		}
	}
	return n
}

// snapshot builds the game_state event payload.
func (s *Session) snapshot() gamedto.GameState {
	players := make([]gamedto.PlayerSnapshot, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, gamedto.PlayerSnapshot{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Points:      p.Points,
			Letters:     p.Letters,
			Draft:       p.Draft,
			Active:      p.Active,
		})
	}
	return gamedto.GameState{
		MatchID:        s.ID,
		Code:           s.Code,
		State:          string(s.State),
		ElapsedSeconds: s.Elapsed,
		Players:        players,
	}
}

// winner returns the participant with the strictly highest score: first in
// roster order to reach the maximum, nil when nobody scored.
func (s *Session) winner() *PlayerState {
	var w *PlayerState
	max := 0
	for _, p := range s.Players {
		if p.Points > max {
			max = p.Points
			w = p
		}
	}
	return w
}
