// Package identity resolves player ids to display names. The session core
// tolerates both registered users (looked up from the user service) and
// ephemeral guests (names kept in redis); an unknown id resolves to a
// placeholder rather than an error.
package identity

import (
	"context"
	"strings"

	"github.com/lexset/letterduel/internal/obslog"
	"go.uber.org/zap"
)

// Resolver maps a player id to a display name. Implementations never fail the
// caller: unknown ids get a placeholder.
type Resolver interface {
	ResolveDisplayName(ctx context.Context, playerID string) string
}

// Placeholder returns the fallback name for an unresolvable id.
func Placeholder(playerID string) string {
	id := strings.TrimSpace(playerID)
	if len(id) > 4 {
		id = id[:4]
	}
	if id == "" {
		return "Player"
	}
	return "Player-" + id
}

// Service resolves names from the guest store first, then from the user
// service. Either backend may be nil.
type Service struct {
	guests *GuestStore
	users  *UserClient
}

func NewService(guests *GuestStore, users *UserClient) *Service {
	return &Service{guests: guests, users: users}
}

func (s *Service) ResolveDisplayName(ctx context.Context, playerID string) string {
	if strings.TrimSpace(playerID) == "" {
		return Placeholder(playerID)
	}
	if s.guests != nil {
		if name, err := s.guests.GetName(ctx, playerID); err == nil && name != "" {
			return name
		}
	}
	if s.users != nil {
		name, err := s.users.DisplayName(ctx, playerID)
		if err != nil {
			obslog.L().Warn("identity_resolve_error", zap.String("player_id", playerID), zap.Error(err))
		} else if name != "" {
			return name
		}
	}
	return Placeholder(playerID)
}

// SaveGuestName best-effort persists a guest's chosen display name. Failures
// are logged and swallowed: lobby joins must not depend on the store.
func (s *Service) SaveGuestName(ctx context.Context, playerID, name string) {
	if s.guests == nil || strings.TrimSpace(name) == "" {
		return
	}
	if err := s.guests.SetName(ctx, playerID, name); err != nil {
		obslog.L().Warn("guest_name_persist_error", zap.String("player_id", playerID), zap.Error(err))
	}
}

// Static is a fixed-table resolver for tests.
type Static map[string]string

func (m Static) ResolveDisplayName(_ context.Context, playerID string) string {
	if name, ok := m[playerID]; ok {
		return name
	}
	return Placeholder(playerID)
}

var _ Resolver = (*Service)(nil)
var _ Resolver = Static(nil)
