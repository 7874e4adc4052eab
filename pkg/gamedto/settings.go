package gamedto

// Settings are the per-lobby game settings carried into the match.
type Settings struct {
	// Match length in milliseconds.
	MatchDurationMs int `json:"matchDurationMs"`
	// Points between forced letter escalations; 0 disables escalation.
	LetterAddFrequency int `json:"letterAddFrequency"`
	// Points that end the match early; 0 disables early-win detection.
	VictoryThreshold int `json:"victoryThreshold"`
}

const (
	MinMatchDurationMs = 10_000
	MaxMatchDurationMs = 3_600_000
	MaxLetterAddFreq   = 999
	MaxVictoryThresh   = 999
)

// Settings violation reasons, surfaced via invalid_game_settings.
const (
	ReasonBadMatchDuration    = "MATCH_DURATION_OUT_OF_RANGE"
	ReasonBadLetterAddFreq    = "LETTER_ADD_FREQUENCY_OUT_OF_RANGE"
	ReasonBadVictoryThreshold = "VICTORY_THRESHOLD_OUT_OF_RANGE"
)

func DefaultSettings() Settings {
	return Settings{
		MatchDurationMs:    180_000,
		LetterAddFrequency: 3,
		VictoryThreshold:   0,
	}
}

// Validate checks each field's range independently and returns the reason for
// the first violation, or "" when the settings are acceptable. A rejected
// settings value is never partially applied.
func (s Settings) Validate() string {
	if s.MatchDurationMs < MinMatchDurationMs || s.MatchDurationMs > MaxMatchDurationMs {
		return ReasonBadMatchDuration
	}
	if s.LetterAddFrequency < 0 || s.LetterAddFrequency > MaxLetterAddFreq {
		return ReasonBadLetterAddFreq
	}
	if s.VictoryThreshold < 0 || s.VictoryThreshold > MaxVictoryThresh {
		return ReasonBadVictoryThreshold
	}
	return ""
}
