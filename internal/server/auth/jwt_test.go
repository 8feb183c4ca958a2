package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateToken("alice@example.com", common.TokenKindAccess, secret, 30*time.Minute, now)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	claims, err := ParseToken(tok, secret, common.TokenKindAccess, now.Add(29*time.Minute))
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != "alice@example.com" || claims.Type != common.TokenKindAccess {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.ID == "" || claims.IssuedAt == nil {
		t.Fatalf("expected jti and iat to be set: %+v", claims)
	}
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateToken("u1@example.com", common.TokenKindAccess, secret, 30*time.Minute, now)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = ParseToken(tok, secret, common.TokenKindAccess, now.Add(31*time.Minute))
	if err == nil {
		t.Fatalf("expected error for expired token, got nil")
	}
	if err != common.ErrTokenExpired {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_WrongKind(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken("u@example.com", common.TokenKindRefresh, secret, time.Hour, now)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := ParseToken(tok, secret, common.TokenKindAccess, now); !errors.Is(err, common.ErrWrongTokenKind) {
		t.Fatalf("expected ErrWrongTokenKind, got %v", err)
	}
	if _, err := ParseToken(tok, secret, "", now); err != nil {
		t.Fatalf("empty kind must accept any kind, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2@example.com", common.TokenKindAccess, []byte("right-secret"), time.Hour, now)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = ParseToken(tok, []byte("wrong-secret"), common.TokenKindAccess, now)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for invalid signature, got %v", err)
	}
}

func TestParseToken_RejectsNoneAndOtherMethods(t *testing.T) {
	t.Parallel()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x@example.com", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		Type:             common.TokenKindAccess,
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := ParseToken(unsigned, []byte("k"), common.TokenKindAccess, now); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("alg=none must be rejected, got %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := ParseToken(hs512, []byte("k"), common.TokenKindAccess, now); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("only HS256 is accepted, got %v", err)
	}
}

func TestParseToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := ParseToken("not.a.jwt", []byte("k"), "", now)
	if err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}
