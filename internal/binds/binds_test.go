package binds_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/store"
	"github.com/google/go-cmp/cmp"
)

const guild = "guild-1"

func rangeBind(min, max int, roles ...string) models.GuildBind {
	return models.GuildBind{
		Roles:       roles,
		RemoveRoles: []string{},
		Criteria: models.BindCriteria{
			Type:  models.BindTypeGroup,
			ID:    12345,
			Group: &models.GroupCriteria{Min: models.IntPtr(min), Max: models.IntPtr(max)},
		},
	}
}

func TestCreateBindMergesIdenticalCriteria(t *testing.T) {
	ctx := context.Background()
	svc := binds.NewService(store.NewInMemoryStore())

	if err := svc.CreateBind(ctx, guild, rangeBind(10, 50, "999")); err != nil {
		t.Fatalf("first CreateBind failed: %v", err)
	}
	if err := svc.CreateBind(ctx, guild, rangeBind(10, 50, "999", "1000")); err != nil {
		t.Fatalf("merge CreateBind failed: %v", err)
	}
	// Same min, different max: a different bind.
	if err := svc.CreateBind(ctx, guild, rangeBind(10, 60, "999")); err != nil {
		t.Fatalf("distinct CreateBind failed: %v", err)
	}

	got, err := svc.GetBinds(ctx, guild, binds.Filter{})
	if err != nil {
		t.Fatalf("GetBinds failed: %v", err)
	}
	want := []models.GuildBind{rangeBind(10, 50, "999", "1000"), rangeBind(10, 60, "999")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("binds mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateBindConflict(t *testing.T) {
	ctx := context.Background()
	svc := binds.NewService(store.NewInMemoryStore())

	if err := svc.CreateBind(ctx, guild, rangeBind(1, 5, "1")); err != nil {
		t.Fatalf("CreateBind failed: %v", err)
	}
	err := svc.CreateBind(ctx, guild, rangeBind(1, 5, "1"))
	if !errors.Is(err, binds.ErrBindConflict) {
		t.Fatalf("expected ErrBindConflict, got %v", err)
	}
}

func TestCreateBindRejects(t *testing.T) {
	ctx := context.Background()
	svc := binds.NewService(store.NewInMemoryStore())

	pending := rangeBind(1, 5)
	pending.PendingNewRoles = []string{"Officers"}
	if err := svc.CreateBind(ctx, guild, pending); !errors.Is(err, binds.ErrPendingRoles) {
		t.Errorf("expected ErrPendingRoles, got %v", err)
	}

	inverted := rangeBind(50, 10, "1")
	if err := svc.CreateBind(ctx, guild, inverted); !errors.Is(err, models.ErrInvalidBind) {
		t.Errorf("expected ErrInvalidBind, got %v", err)
	}
}

func TestDeleteAndDescribe(t *testing.T) {
	ctx := context.Background()
	svc := binds.NewService(store.NewInMemoryStore())

	badge := models.GuildBind{
		Roles:    []string{"7"},
		Criteria: models.BindCriteria{Type: models.BindTypeBadge, ID: 77},
	}
	for _, b := range []models.GuildBind{rangeBind(10, 50, "999"), badge} {
		if err := svc.CreateBind(ctx, guild, b); err != nil {
			t.Fatalf("CreateBind failed: %v", err)
		}
	}

	cats, err := svc.Categories(ctx, guild)
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if diff := cmp.Diff([]models.BindType{models.BindTypeGroup, models.BindTypeBadge}, cats); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}

	desc, err := svc.Describe(ctx, guild, binds.Filter{Type: models.BindTypeGroup, ID: 12345})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if want := "- Rank between 10 and 50 → <@&999>"; desc != want {
		t.Errorf("Describe = %q, want %q", desc, want)
	}

	n, err := svc.DeleteBinds(ctx, guild, binds.Filter{Type: models.BindTypeGroup, ID: 12345})
	if err != nil || n != 1 {
		t.Fatalf("DeleteBinds = %d, %v; want 1, nil", n, err)
	}
	n, err = svc.DeleteBinds(ctx, guild, binds.Filter{Type: models.BindTypeGroup, ID: 12345})
	if err != nil || n != 0 {
		t.Fatalf("second DeleteBinds = %d, %v; want 0, nil", n, err)
	}
	desc, _ = svc.Describe(ctx, guild, binds.Filter{Type: models.BindTypeGroup})
	if desc != "" {
		t.Errorf("expected no group binds, got %q", desc)
	}

	ids, err := svc.EntityIDs(ctx, guild, models.BindTypeBadge)
	if err != nil || len(ids) != 1 || ids[0] != 77 {
		t.Errorf("EntityIDs = %v, %v", ids, err)
	}
}
