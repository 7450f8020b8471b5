// Package binds manages the bind lists of guilds.
package binds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/BTreeMap/RoleBridge/internal/models"
)

var (
	// ErrBindConflict is returned when a bind with the same criteria already
	// grants every requested role.
	ErrBindConflict = errors.New("bind already exists")
	// ErrPendingRoles is returned when a bind still names roles that were never created.
	ErrPendingRoles = errors.New("bind has roles pending creation")
)

// Repo persists guild bind lists. store backends implement it.
type Repo interface {
	GetGuildBinds(ctx context.Context, guildID string) ([]models.GuildBind, error)
	SaveGuildBinds(ctx context.Context, guildID string, binds []models.GuildBind) error
}

// Filter narrows GetBinds. Zero values match everything.
type Filter struct {
	Type models.BindType
	ID   int64
}

func (f Filter) match(b models.GuildBind) bool {
	if f.Type != "" && b.Criteria.Type != f.Type {
		return false
	}
	if f.ID != 0 && b.Criteria.ID != f.ID {
		return false
	}
	return true
}

// Service applies bind rules on top of a Repo. Updates of a guild's list are
// read-modify-write, so they are serialized per process.
type Service struct {
	repo Repo
	mu   sync.Mutex
}

// NewService creates a Service.
func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// CreateBind saves bind for a guild. If a bind with identical criteria exists,
// the new roles are merged into it and a non-empty RemoveRoles replaces the
// existing list. ErrBindConflict is returned when the merge changes nothing.
func (s *Service) CreateBind(ctx context.Context, guildID string, bind models.GuildBind) error {
	if len(bind.PendingNewRoles) > 0 {
		return fmt.Errorf("%w: %s", ErrPendingRoles, strings.Join(bind.PendingNewRoles, ", "))
	}
	if err := bind.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.GetGuildBinds(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to load binds for guild %s: %w", guildID, err)
	}

	idx := slices.IndexFunc(existing, func(b models.GuildBind) bool {
		return b.Criteria.Equal(bind.Criteria)
	})
	if idx < 0 {
		bind.Roles = dedupe(bind.Roles)
		bind.RemoveRoles = dedupe(bind.RemoveRoles)
		existing = append(existing, bind)
		slog.Debug("Service.CreateBind: new bind", "guild_id", guildID, "bind", bind.Criteria.Describe())
	} else {
		cur := &existing[idx]
		merged := dedupe(append(append([]string(nil), cur.Roles...), bind.Roles...))
		changed := len(merged) != len(cur.Roles)
		cur.Roles = merged
		if len(bind.RemoveRoles) > 0 && !slices.Equal(dedupe(bind.RemoveRoles), cur.RemoveRoles) {
			cur.RemoveRoles = dedupe(bind.RemoveRoles)
			changed = true
		}
		if bind.Nickname != "" && bind.Nickname != cur.Nickname {
			cur.Nickname = bind.Nickname
			changed = true
		}
		if !changed {
			return fmt.Errorf("%w: %s", ErrBindConflict, bind.Criteria.Describe())
		}
		slog.Debug("Service.CreateBind: merged into existing bind", "guild_id", guildID, "bind", cur.Criteria.Describe(), "roles", len(cur.Roles))
	}

	if err := s.repo.SaveGuildBinds(ctx, guildID, existing); err != nil {
		return fmt.Errorf("failed to save binds for guild %s: %w", guildID, err)
	}
	return nil
}

// GetBinds returns the guild's binds matching f.
func (s *Service) GetBinds(ctx context.Context, guildID string, f Filter) ([]models.GuildBind, error) {
	all, err := s.repo.GetGuildBinds(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load binds for guild %s: %w", guildID, err)
	}
	var out []models.GuildBind
	for _, b := range all {
		if f.match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

// DeleteBinds removes every bind matching f and returns how many were removed.
func (s *Service) DeleteBinds(ctx context.Context, guildID string, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.repo.GetGuildBinds(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to load binds for guild %s: %w", guildID, err)
	}
	kept := make([]models.GuildBind, 0, len(all))
	for _, b := range all {
		if !f.match(b) {
			kept = append(kept, b)
		}
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.repo.SaveGuildBinds(ctx, guildID, kept); err != nil {
		return 0, fmt.Errorf("failed to save binds for guild %s: %w", guildID, err)
	}
	slog.Info("Service.DeleteBinds: removed binds", "guild_id", guildID, "type", f.Type, "id", f.ID, "removed", removed)
	return removed, nil
}

// Describe renders the matching binds one per line. It returns "" when there
// are none.
func (s *Service) Describe(ctx context.Context, guildID string, f Filter) (string, error) {
	list, err := s.GetBinds(ctx, guildID, f)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(list))
	for _, b := range list {
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n"), nil
}

// Categories returns the bind types the guild uses, in models.BindTypes order.
func (s *Service) Categories(ctx context.Context, guildID string) ([]models.BindType, error) {
	all, err := s.repo.GetGuildBinds(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load binds for guild %s: %w", guildID, err)
	}
	var out []models.BindType
	for _, t := range models.BindTypes {
		if slices.ContainsFunc(all, func(b models.GuildBind) bool { return b.Criteria.Type == t }) {
			out = append(out, t)
		}
	}
	return out, nil
}

// EntityIDs returns the distinct entity IDs bound for a type, in bind order.
func (s *Service) EntityIDs(ctx context.Context, guildID string, t models.BindType) ([]int64, error) {
	list, err := s.GetBinds(ctx, guildID, Filter{Type: t})
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, b := range list {
		if !slices.Contains(ids, b.Criteria.ID) {
			ids = append(ids, b.Criteria.ID)
		}
	}
	return ids, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
