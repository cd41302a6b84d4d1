package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueSessionRoundTrip(t *testing.T) {
	secret := []byte("secret")
	token, issued, err := IssueSession(secret, "u_alice", "alice", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if !strings.HasPrefix(issued.JTI, "tok_") {
		t.Fatalf("unexpected token id %q", issued.JTI)
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims != issued {
		t.Fatalf("claims changed in transit: %+v vs %+v", claims, issued)
	}
}

func TestIssueSessionRequiresIdentity(t *testing.T) {
	if _, _, err := IssueSession([]byte("s"), "", "alice", time.Hour, time.Now()); err == nil {
		t.Fatal("expected error without user id")
	}
	if _, _, err := IssueSession([]byte("s"), "u_1", " ", time.Hour, time.Now()); err == nil {
		t.Fatal("expected error without username")
	}
	if _, _, err := IssueSession([]byte("s"), "u_1", "alice", 0, time.Now()); err == nil {
		t.Fatal("expected error without ttl")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token, _, err := IssueSession(secret, "u_alice", "alice", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	token, _, err := IssueSession(secret, "u_alice", "alice", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	forged, err := IssueToken([]byte("other"), Claims{Sub: "u_bob", Name: "bob", JTI: "x", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	payload, _, _ := strings.Cut(forged, ".")
	_, signature, _ := strings.Cut(token, ".")

	for _, candidate := range []string{
		"",
		"no-signature",
		payload + "." + signature,
		token + ".extra",
		forged,
	} {
		if _, err := ParseToken(secret, candidate); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseToken(%q) = %v, want ErrInvalidToken", candidate, err)
		}
	}
}
