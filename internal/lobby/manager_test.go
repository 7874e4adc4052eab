package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lexset/letterduel/internal/directory"
	"github.com/lexset/letterduel/pkg/gamedto"
)

type recorder struct {
	mu       sync.Mutex
	toLobby  []gamedto.Event
	toPlayer map[string][]gamedto.Event
}

func newRecorder() *recorder {
	return &recorder{toPlayer: make(map[string][]gamedto.Event)}
}

func (r *recorder) ToLobby(code string, ev gamedto.Event) {
	r.mu.Lock()
	r.toLobby = append(r.toLobby, ev)
	r.mu.Unlock()
}

func (r *recorder) ToPlayer(playerID string, ev gamedto.Event) {
	r.mu.Lock()
	r.toPlayer[playerID] = append(r.toPlayer[playerID], ev)
	r.mu.Unlock()
}

func (r *recorder) lastToPlayer(t *testing.T, playerID string) gamedto.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.toPlayer[playerID]
	if len(evs) == 0 {
		t.Fatalf("no events delivered to %s", playerID)
	}
	return evs[len(evs)-1]
}

func (r *recorder) lastLobbyState(t *testing.T) gamedto.LobbyState {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.toLobby) - 1; i >= 0; i-- {
		if st, ok := r.toLobby[i].(gamedto.LobbyState); ok {
			return st
		}
	}
	t.Fatal("no lobby_state broadcast")
	return gamedto.LobbyState{}
}

type fakeStarter struct {
	mu       sync.Mutex
	starts   int
	roster   []Participant
	settings gamedto.Settings
	err      error
}

func (s *fakeStarter) StartMatch(_ context.Context, participants []Participant, settings gamedto.Settings) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.starts++
	s.roster = participants
	s.settings = settings
	return "match-1", nil
}

func newTestManager(t *testing.T) (*Manager, *recorder, *fakeStarter) {
	t.Helper()
	rec := newRecorder()
	starter := &fakeStarter{}
	m := NewManager(directory.NewCodes(), starter, nil, rec, Options{})
	return m, rec, starter
}

func mustCreate(t *testing.T, m *Manager, hostID string) string {
	t.Helper()
	code, err := m.Create(context.Background(), hostID, "Host")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	return code
}

func mustJoin(t *testing.T, m *Manager, code, playerID, name string) {
	t.Helper()
	if err := m.Join(context.Background(), code, playerID, name); err != nil {
		t.Fatalf("join %s: %v", playerID, err)
	}
}

func TestCreateLeavesAdminOffRoster(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")

	lb, ok := m.Get(code)
	if !ok {
		t.Fatal("lobby not registered")
	}
	if lb.Admin != "host" {
		t.Fatalf("admin = %q", lb.Admin)
	}
	if len(lb.Players) != 0 {
		t.Fatalf("roster = %v, want empty", lb.Players)
	}
	if ev, ok := rec.lastToPlayer(t, "host").(gamedto.LobbyCreated); !ok || ev.Code != code {
		t.Fatalf("event to host = %+v", ev)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")

	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p1", "Ana")

	lb, _ := m.Get(code)
	if len(lb.Players) != 1 {
		t.Fatalf("roster size = %d, want 1", len(lb.Players))
	}
	st := rec.lastLobbyState(t)
	if len(st.Players) != 1 || st.Players[0].PlayerID != "p1" || st.Players[0].DisplayName != "Ana" {
		t.Fatalf("lobby_state = %+v", st)
	}
}

func TestJoinPreservesOrder(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")
	mustJoin(t, m, code, "p3", "Cho")

	st := rec.lastLobbyState(t)
	for i, want := range []string{"p1", "p2", "p3"} {
		if st.Players[i].PlayerID != want {
			t.Fatalf("roster[%d] = %s, want %s", i, st.Players[i].PlayerID, want)
		}
	}
}

func TestFindRejections(t *testing.T) {
	m, rec, _ := newTestManager(t)

	if err := m.Join(context.Background(), "toolong", "p1", "Ana"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if _, ok := rec.lastToPlayer(t, "p1").(gamedto.InvalidLobbyCode); !ok {
		t.Fatal("expected invalid_lobby_code event")
	}

	if err := m.Join(context.Background(), "ZZZZ", "p1", "Ana"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("err = %v, want ErrLobbyNotFound", err)
	}
	if _, ok := rec.lastToPlayer(t, "p1").(gamedto.LobbyNotFound); !ok {
		t.Fatal("expected lobby_not_found event")
	}
}

func TestReadyAutoStart(t *testing.T) {
	m, rec, starter := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")

	if err := m.SetReady(context.Background(), code, "p1"); err != nil {
		t.Fatalf("ready p1: %v", err)
	}
	if starter.starts != 0 {
		t.Fatal("started with one unready player")
	}

	if err := m.SetReady(context.Background(), code, "p2"); err != nil {
		t.Fatalf("ready p2: %v", err)
	}
	if starter.starts != 1 {
		t.Fatalf("starts = %d, want 1", starter.starts)
	}
	if len(starter.roster) != 2 || starter.roster[0].ID != "p1" || starter.roster[1].ID != "p2" {
		t.Fatalf("roster = %+v", starter.roster)
	}

	// lobby dissolved by the handoff
	if _, ok := m.Get(code); ok {
		t.Fatal("lobby still registered after start")
	}
	found := false
	rec.mu.Lock()
	for _, ev := range rec.toLobby {
		if gs, ok := ev.(gamedto.GameStarted); ok && gs.MatchID == "match-1" {
			found = true
		}
	}
	rec.mu.Unlock()
	if !found {
		t.Fatal("game_started not broadcast")
	}
}

func TestDissolvedLobbyRejectsLateOperations(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")
	if err := m.SetReady(context.Background(), code, "p1"); err != nil {
		t.Fatalf("ready p1: %v", err)
	}
	if err := m.SetReady(context.Background(), code, "p2"); err != nil {
		t.Fatalf("ready p2: %v", err)
	}

	// the code is syntactically fine but the auto-start dissolved the lobby;
	// every mutating operation has to notice that inside its own lock
	if err := m.Join(context.Background(), code, "p3", "Cho"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("join err = %v, want ErrLobbyNotFound", err)
	}
	if _, ok := rec.lastToPlayer(t, "p3").(gamedto.LobbyNotFound); !ok {
		t.Fatalf("p3 event = %+v", rec.lastToPlayer(t, "p3"))
	}
	if err := m.SetReady(context.Background(), code, "p1"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("ready err = %v, want ErrLobbyNotFound", err)
	}
	if err := m.Leave(context.Background(), code, "p1"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("leave err = %v, want ErrLobbyNotFound", err)
	}
}

func TestUnreadyBlocksAutoStart(t *testing.T) {
	m, _, starter := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")

	if err := m.SetReady(context.Background(), code, "p1"); err != nil {
		t.Fatalf("ready p1: %v", err)
	}
	if err := m.SetUnready(context.Background(), code, "p1"); err != nil {
		t.Fatalf("unready p1: %v", err)
	}
	if err := m.SetReady(context.Background(), code, "p2"); err != nil {
		t.Fatalf("ready p2: %v", err)
	}
	if starter.starts != 0 {
		t.Fatal("started despite unready player")
	}
}

func TestAutoStartNeedsTwoPlayers(t *testing.T) {
	m, _, starter := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")

	if err := m.SetReady(context.Background(), code, "p1"); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if starter.starts != 0 {
		t.Fatal("started a solo lobby")
	}
}

func TestSetSettings(t *testing.T) {
	m, _, starter := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")

	want := gamedto.Settings{MatchDurationMs: 60_000, LetterAddFrequency: 1, VictoryThreshold: 5}
	if err := m.SetSettings(context.Background(), code, "host", want); err != nil {
		t.Fatalf("set settings: %v", err)
	}
	lb, _ := m.Get(code)
	if lb.Settings != want {
		t.Fatalf("settings = %+v", lb.Settings)
	}

	// the stored settings ride along into the match
	mustJoin(t, m, code, "p2", "Ben")
	if err := m.StartGame(context.Background(), code, "host"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if starter.settings != want {
		t.Fatalf("started with settings %+v", starter.settings)
	}
}

func TestSetSettingsRejectsOutOfRangeWithoutMutation(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")

	bad := gamedto.Settings{MatchDurationMs: 60_000, VictoryThreshold: 1000}
	err := m.SetSettings(context.Background(), code, "host", bad)
	var serr SettingsError
	if !errors.As(err, &serr) || serr.Reason != gamedto.ReasonBadVictoryThreshold {
		t.Fatalf("err = %v", err)
	}
	ev, ok := rec.lastToPlayer(t, "host").(gamedto.InvalidGameSettings)
	if !ok || ev.Reason != gamedto.ReasonBadVictoryThreshold {
		t.Fatalf("event = %+v", ev)
	}

	lb, _ := m.Get(code)
	if lb.Settings != gamedto.DefaultSettings() {
		t.Fatalf("settings mutated to %+v", lb.Settings)
	}
}

func TestSetSettingsAdminOnly(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")

	err := m.SetSettings(context.Background(), code, "p1", gamedto.DefaultSettings())
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}
	if _, ok := rec.lastToPlayer(t, "p1").(gamedto.NotAdmin); !ok {
		t.Fatal("expected not_admin event")
	}
}

func TestStartGameRequiresTwoPlayers(t *testing.T) {
	m, rec, starter := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")

	err := m.StartGame(context.Background(), code, "host")
	if !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("err = %v, want ErrNotEnoughPlayers", err)
	}
	if _, ok := rec.lastToPlayer(t, "host").(gamedto.NotEnoughPlayers); !ok {
		t.Fatal("expected not_enough_players event")
	}
	if starter.starts != 0 {
		t.Fatal("match started")
	}
}

func TestStartGameAdminOnly(t *testing.T) {
	m, _, starter := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")

	if err := m.StartGame(context.Background(), code, "p1"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}
	if starter.starts != 0 {
		t.Fatal("match started")
	}
}

func TestStartFailureReleasesCode(t *testing.T) {
	m, _, starter := newTestManager(t)
	starter.err = errors.New("engine down")
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")

	if err := m.StartGame(context.Background(), code, "host"); err == nil {
		t.Fatal("expected start error")
	}
	if _, ok := m.Get(code); ok {
		t.Fatal("lobby still registered after failed start")
	}
}

func TestLeave(t *testing.T) {
	m, rec, _ := newTestManager(t)
	code := mustCreate(t, m, "host")
	mustJoin(t, m, code, "p1", "Ana")
	mustJoin(t, m, code, "p2", "Ben")

	if err := m.Leave(context.Background(), code, "p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	st := rec.lastLobbyState(t)
	if len(st.Players) != 1 || st.Players[0].PlayerID != "p2" {
		t.Fatalf("lobby_state = %+v", st)
	}

	if err := m.Leave(context.Background(), code, "p1"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("second leave err = %v, want ErrLobbyNotFound", err)
	}
}

func TestSweepEvictsIdleEmptyLobbies(t *testing.T) {
	m, _, _ := newTestManager(t)
	idle := mustCreate(t, m, "host")
	occupied := mustCreate(t, m, "host2")
	mustJoin(t, m, occupied, "p1", "Ana")

	m.sweep(time.Now().Add(31 * time.Minute))

	if _, ok := m.Get(idle); ok {
		t.Fatal("idle empty lobby survived sweep")
	}
	if _, ok := m.Get(occupied); !ok {
		t.Fatal("occupied lobby evicted")
	}
	if !m.codes.Active(occupied) {
		t.Fatal("occupied code released")
	}
	if m.codes.Active(idle) {
		t.Fatal("evicted code still reserved")
	}
}

func TestSweepKeepsFreshEmptyLobbies(t *testing.T) {
	m, _, _ := newTestManager(t)
	code := mustCreate(t, m, "host")

	m.sweep(time.Now().Add(10 * time.Minute))
	if _, ok := m.Get(code); !ok {
		t.Fatal("fresh empty lobby evicted")
	}
}
