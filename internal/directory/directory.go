// Package directory holds the process-wide registries for the session core:
// active lobby/match code reservations and the player → session bindings.
// It is injected into the lobby and match managers rather than reached for as
// ambient global state.
package directory

import (
	"crypto/rand"
	"fmt"
	"sync"
)

const (
	LobbyCodeLen = 4
	MatchCodeLen = 6

	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxAttempts = 32
)

// Codes reserves short alphanumeric codes so that no two active lobbies or
// matches ever share one. Released codes become available again; whether a
// released match code should be quarantined instead is an open policy question,
// so callers may simply never release until well after teardown.
type Codes struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewCodes() *Codes {
	return &Codes{active: make(map[string]struct{})}
}

// Generate allocates and reserves a fresh code of the given length,
// regenerating on collision with any active code.
func (c *Codes) Generate(length int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < maxAttempts; i++ {
		code, err := randomCode(length)
		if err != nil {
			return "", err
		}
		if _, taken := c.active[code]; taken {
			continue
		}
		c.active[code] = struct{}{}
		return code, nil
	}
	return "", fmt.Errorf("failed to allocate a unique %d-char code", length)
}

// Reserve claims a specific code; false when already active.
func (c *Codes) Reserve(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.active[code]; taken {
		return false
	}
	c.active[code] = struct{}{}
	return true
}

// Release frees a code reservation. Releasing an unknown code is a no-op.
func (c *Codes) Release(code string) {
	c.mu.Lock()
	delete(c.active, code)
	c.mu.Unlock()
}

// Active reports whether the code is currently reserved.
func (c *Codes) Active(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, taken := c.active[code]
	return taken
}

func randomCode(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i := range b {
		b[i] = codeCharset[int(b[i])%len(codeCharset)]
	}
	return string(b), nil
}

// Presence tracks which session code each connected player is bound to.
type Presence struct {
	mu       sync.RWMutex
	byPlayer map[string]string
}

func NewPresence() *Presence {
	return &Presence{byPlayer: make(map[string]string)}
}

// Bind records that a player is connected to the session with the given code,
// replacing any previous binding.
func (p *Presence) Bind(playerID, code string) {
	p.mu.Lock()
	p.byPlayer[playerID] = code
	p.mu.Unlock()
}

// Unbind drops the player's binding if it still points at code.
func (p *Presence) Unbind(playerID, code string) {
	p.mu.Lock()
	if p.byPlayer[playerID] == code {
		delete(p.byPlayer, playerID)
	}
	p.mu.Unlock()
}

// Lookup returns the session code the player is bound to, if any.
func (p *Presence) Lookup(playerID string) (string, bool) {
	p.mu.RLock()
	code, ok := p.byPlayer[playerID]
	p.mu.RUnlock()
	return code, ok
}
