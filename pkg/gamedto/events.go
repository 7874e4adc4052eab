package gamedto

// Outbound events produced by the session core for a transport layer to
// deliver. Event names follow the wire protocol.

type Event interface{ EventName() string }

// LobbyPlayer is one roster entry in lobby events.
type LobbyPlayer struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Ready       bool   `json:"ready"`
}

// PlayerSnapshot is one participant's view inside a game_state snapshot.
type PlayerSnapshot struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
	Letters     string `json:"letters"`
	Draft       string `json:"draft"`
	Active      bool   `json:"active"`
}

// PlayerScore is one line of the terminal scoreboard.
type PlayerScore struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
}

type LobbyCreated struct {
	Code string `json:"code"`
}

type JoinedLobby struct {
	Code    string        `json:"code"`
	Players []LobbyPlayer `json:"players"`
	Admin   string        `json:"admin"`
}

type LobbyState struct {
	Code     string        `json:"code"`
	Players  []LobbyPlayer `json:"players"`
	Admin    string        `json:"admin"`
	Settings Settings      `json:"settings"`
}

type InvalidLobbyCode struct {
	Code string `json:"code"`
}

type LobbyNotFound struct {
	Code string `json:"code"`
}

type NotAdmin struct {
	Code string `json:"code"`
}

type InvalidGameSettings struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type NotEnoughPlayers struct {
	Code string `json:"code"`
}

type GameStarted struct {
	MatchID string `json:"matchId"`
}

type GameState struct {
	MatchID        string           `json:"matchId"`
	Code           string           `json:"code"`
	State          string           `json:"state"`
	ElapsedSeconds int              `json:"elapsedSeconds"`
	Players        []PlayerSnapshot `json:"players"`
}

type Valid struct {
	By    string    `json:"by"`
	State GameState `json:"state"`
}

type Invalid struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
}

// Pause/resume reasons.
const (
	PauseReasonDisconnect   = "player_disconnected"
	ResumeReasonReconnected = "player_reconnected"
	ResumeReasonLeft        = "player_left"
)

type GamePaused struct {
	Reason      string `json:"reason"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type GameResumed struct {
	Reason      string `json:"reason"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type GameEnded struct {
	MatchID        string        `json:"matchId"`
	ElapsedSeconds int           `json:"elapsedSeconds"`
	// Winner is the winning player's id, or "" on a scoreless or tied-at-zero
	// finish.
	Winner string        `json:"winner"`
	Scores []PlayerScore `json:"scores"`
}

func (LobbyCreated) EventName() string        { return "lobby_created" }
func (JoinedLobby) EventName() string         { return "joined_lobby" }
func (LobbyState) EventName() string          { return "lobby_state" }
func (InvalidLobbyCode) EventName() string    { return "invalid_lobby_code" }
func (LobbyNotFound) EventName() string       { return "lobby_not_found" }
func (NotAdmin) EventName() string            { return "not_admin" }
func (InvalidGameSettings) EventName() string { return "invalid_game_settings" }
func (NotEnoughPlayers) EventName() string    { return "not_enough_players" }
func (GameStarted) EventName() string         { return "game_started" }
func (GameState) EventName() string           { return "game_state" }
func (Valid) EventName() string               { return "valid" }
func (Invalid) EventName() string             { return "invalid" }
func (GamePaused) EventName() string          { return "game_paused" }
func (GameResumed) EventName() string         { return "game_resumed" }
func (GameEnded) EventName() string           { return "game_ended" }
