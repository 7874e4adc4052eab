package gamedto

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Inbound requests are decoded and validated here, at the boundary, so the
// session logic only ever sees one of the typed variants below.

var (
	ErrUnknownType = errors.New("unknown request type")
	ErrBadPayload  = errors.New("malformed request payload")

	lobbyCodeRe = regexp.MustCompile(`^[a-zA-Z0-9]{4}$`)
	matchCodeRe = regexp.MustCompile(`^[a-zA-Z0-9]{6}$`)
)

// ValidLobbyCode reports whether code matches the 4-char alphanumeric pattern.
func ValidLobbyCode(code string) bool { return lobbyCodeRe.MatchString(code) }

// ValidMatchCode reports whether code matches the 6-char alphanumeric pattern.
func ValidMatchCode(code string) bool { return matchCodeRe.MatchString(code) }

// Request is the tagged union of inbound events. The acting player's identity
// is resolved by the transport and attached by the gateway, not trusted from
// the payload.
type Request interface{ isRequest() }

type CreateLobby struct {
	DisplayName string `json:"displayName"`
}

type JoinLobby struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

type Ready struct {
	Code string `json:"code"`
}

type Unready struct {
	Code string `json:"code"`
}

type SetGameSettings struct {
	Code     string   `json:"code"`
	Settings Settings `json:"gameSettings"`
}

type LeaveLobby struct {
	Code string `json:"code"`
}

type StartGame struct {
	Code string `json:"code"`
}

// JoinMatch is the transport-level join that feeds the match engine's
// connection gating.
type JoinMatch struct {
	Code string `json:"code"`
}

type Move struct {
	Word string `json:"word"`
}

type Written struct {
	Text string `json:"text"`
}

func (CreateLobby) isRequest()     {}
func (JoinLobby) isRequest()       {}
func (Ready) isRequest()           {}
func (Unready) isRequest()         {}
func (SetGameSettings) isRequest() {}
func (LeaveLobby) isRequest()      {}
func (StartGame) isRequest()       {}
func (JoinMatch) isRequest()       {}
func (Move) isRequest()            {}
func (Written) isRequest()         {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseRequest decodes a wire message into its typed variant.
func ParseRequest(raw []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	decode := func(dst Request) (Request, error) {
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, dst); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
		}
		return dst, nil
	}

	switch env.Type {
	case "createLobby":
		return decode(&CreateLobby{})
	case "joinLobby":
		return decode(&JoinLobby{})
	case "ready":
		return decode(&Ready{})
	case "unready":
		return decode(&Unready{})
	case "setGameSettings":
		// absent settings fields keep their defaults
		return decode(&SetGameSettings{Settings: DefaultSettings()})
	case "leaveLobby":
		return decode(&LeaveLobby{})
	case "startGame":
		return decode(&StartGame{})
	case "joinMatch":
		return decode(&JoinMatch{})
	case "move":
		return decode(&Move{})
	case "written":
		return decode(&Written{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
