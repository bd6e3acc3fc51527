package auth

import (
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", 7)

	token, err := manager.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.Subject != "admin" || !claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", 7).GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := NewJWTManager("secret-b", 7).ValidateToken(token); err == nil {
		t.Fatalf("expected validation to fail with a different secret")
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	manager := NewJWTManager("test-secret", 7)
	token, err := manager.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := manager.ValidateToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}
