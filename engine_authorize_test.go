package sessiongate

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/sessiongate/permission"
)

func TestAuthorizeSubsetOfRoleRightsSucceeds(t *testing.T) {
	var ids []Identity
	for _, role := range permission.Roles() {
		ids = append(ids, Identity{ID: "u-" + role.String(), Role: role})
	}
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider(ids...))
	ctx := context.Background()

	for _, id := range ids {
		token := mustToken(t, engine, id.ID)
		rights := engine.RightsFor(id.Role).List()
		for i := 0; i <= len(rights); i++ {
			got, err := engine.Authorize(ctx, token, rights[:i], "")
			if err != nil {
				t.Fatalf("%s requiring %v: %v", id.Role, rights[:i], err)
			}
			if got.ID != id.ID {
				t.Fatalf("unexpected identity %q", got.ID)
			}
		}
	}
}

func TestAuthorizeForbiddenUnlessOwner(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider(alice, mentor))
	ctx := context.Background()
	required := []permission.Right{permission.ManageUsers}

	for _, id := range []Identity{alice, mentor} {
		token := mustToken(t, engine, id.ID)

		if _, err := engine.Authorize(ctx, token, required, ""); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s without owner: expected ErrForbidden, got %v", id.ID, err)
		}
		if _, err := engine.Authorize(ctx, token, required, "someone-else"); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s foreign owner: expected ErrForbidden, got %v", id.ID, err)
		}
		got, err := engine.Authorize(ctx, token, required, id.ID)
		if err != nil {
			t.Fatalf("%s self access: %v", id.ID, err)
		}
		if got.ID != id.ID {
			t.Fatalf("self access returned %q", got.ID)
		}
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSelfAccessOverride] != 2 {
		t.Fatalf("expected 2 self-access overrides, got %d", snap.Counters[MetricSelfAccessOverride])
	}
	if snap.Counters[MetricAuthorizeForbidden] != 4 {
		t.Fatalf("expected 4 forbidden, got %d", snap.Counters[MetricAuthorizeForbidden])
	}
}

func TestAuthorizeEmptyRequirementAdmitsAnyIdentity(t *testing.T) {
	unknownRole := Identity{ID: "legacy", Role: permission.RoleUnknown}
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider(unknownRole))

	if _, err := engine.Authorize(context.Background(), mustToken(t, engine, "legacy"), nil, ""); err != nil {
		t.Fatalf("expected empty requirement to pass: %v", err)
	}
	if _, err := engine.Authorize(context.Background(), mustToken(t, engine, "legacy"), []permission.Right{permission.GetStudents}, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unknown role must be fail-closed, got %v", err)
	}
}

func TestAuthorizeBadTokenIsNeverForbidden(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider(admin))
	ctx := context.Background()

	cases := map[string]string{
		"empty":   "",
		"garbage": "abc.def.ghi",
		"unknown": mustToken(t, engine, "nobody"),
	}
	for name, token := range cases {
		_, err := engine.Authorize(ctx, token, []permission.Right{permission.GetUsers}, "nobody")
		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
		if errors.Is(err, ErrForbidden) {
			t.Fatalf("%s: bad token must not yield ErrForbidden", name)
		}
	}

	_, err := engine.Authorize(ctx, "", nil, "")
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestAuthorizeAdminHoldsAllRights(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider(admin))
	all := []permission.Right{permission.GetUsers, permission.ManageUsers, permission.GetStudents}

	if _, err := engine.Authorize(context.Background(), mustToken(t, engine, "root"), all, ""); err != nil {
		t.Fatalf("admin should hold %v: %v", all, err)
	}
}

func TestAuthorizeAuditsForbidden(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(8)
	engine, err := New().WithConfig(cfg).WithIdentityProvider(newMockIdentityProvider(alice)).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	_, _ = engine.Authorize(WithClientIP(context.Background(), "203.0.113.7"), mustToken(t, engine, "alice"), []permission.Right{permission.GetUsers}, "")

	event := <-sink.Events()
	if event.EventType != auditEventAccessForbidden || event.UserID != "alice" || event.IP != "203.0.113.7" {
		t.Fatalf("unexpected audit event %+v", event)
	}
	if event.Error != string(auditErrForbidden) || event.Metadata["required"] != "getUsers" {
		t.Fatalf("unexpected audit detail %+v", event)
	}
}
