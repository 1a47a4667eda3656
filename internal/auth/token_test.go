package auth

import (
	"errors"
	"testing"
	"time"

	"ipamd/internal/domain"
)

func testUser() domain.User {
	return domain.User{ID: 42, Username: "alice", Role: domain.RoleAdmin}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), time.Hour, 24*time.Hour)

	pair, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("both tokens must be issued")
	}
	if pair.ExpiresIn != 3600 {
		t.Fatalf("expected 3600s expiry, got %d", pair.ExpiresIn)
	}

	p, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if p.UserID != 42 || p.Username != "alice" || p.Role != domain.RoleAdmin {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if !p.IsAdmin() {
		t.Fatal("admin role must report as admin")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), time.Hour, 24*time.Hour)

	pair, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := svc.VerifyAccess(pair.RefreshToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("refresh token must not pass as access, got %v", err)
	}
	if _, err := svc.VerifyRefresh(pair.AccessToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("access token must not pass as refresh, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), time.Hour, 24*time.Hour)
	issuedAt := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issuedAt }

	pair, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.VerifyAccess(pair.AccessToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expired token must fail, got %v", err)
	}
}

func TestVerifyToleratesClockSkewWithinLeeway(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), time.Hour, 24*time.Hour)
	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	pair, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// 10s past expiry is inside the 30s leeway.
	svc.now = func() time.Time { return issuedAt.Add(time.Hour + 10*time.Second) }
	if _, err := svc.VerifyAccess(pair.AccessToken); err != nil {
		t.Fatalf("token within leeway must pass, got %v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	issuer := NewTokenService([]byte("key-one"), time.Hour, 24*time.Hour)
	verifier := NewTokenService([]byte("key-two"), time.Hour, 24*time.Hour)

	pair, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := verifier.VerifyAccess(pair.AccessToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("token signed with another key must fail, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), time.Hour, 24*time.Hour)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.VerifyAccess(raw); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("%q: expected ErrUnauthenticated, got %v", raw, err)
		}
	}
}
