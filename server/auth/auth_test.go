package auth

import (
	"bytes"
	"errors"
	"regexp"
	"testing"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
	"pgregory.net/rapid"
)

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("dlr:/dev:secret:5f0c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SocketType != "dlr" || id.Vhost != "/dev" || id.Token != "secret" || id.ID != "5f0c" {
		t.Errorf("unexpected identity %+v", id)
	}
	if id.String() != "dlr:/dev:secret:5f0c" {
		t.Errorf("unexpected string %q", id.String())
	}

	if _, err := ParseIdentity("req:/dev::abc"); err != nil {
		t.Errorf("empty token should parse: %v", err)
	}
}

func TestParseIdentity_Invalid(t *testing.T) {
	for _, s := range []string{"", "req", "req:/dev:tok", "pub:/dev:tok:id", "req:/dev:tok:"} {
		if _, err := ParseIdentity(s); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("ParseIdentity(%q): expected ErrInvalidIdentity, got %v", s, err)
		}
	}
}

func TestVhostAuth_Verify(t *testing.T) {
	a := NewVhostAuth([]config.Vhost{
		{Path: "/dev", Secret: "secret"},
		{Path: "/open"},
	})

	tests := []struct {
		name string
		id   Identity
		ok   bool
	}{
		{"valid", Identity{Vhost: "/dev", Token: "secret"}, true},
		{"wrong token", Identity{Vhost: "/dev", Token: "nope"}, false},
		{"empty token", Identity{Vhost: "/dev"}, false},
		{"unknown vhost", Identity{Vhost: "/prod", Token: "secret"}, false},
		{"open vhost", Identity{Vhost: "/open", Token: "anything"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Verify(tt.id)
			if tt.ok && err != nil {
				t.Errorf("expected success, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestIssueToken(t *testing.T) {
	token, err := IssueToken("secret", "joe", "^(chat|news)$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != protocol.AccessTokenLength {
		t.Fatalf("expected %d characters, got %d", protocol.AccessTokenLength, len(token))
	}

	again, err := IssueToken("secret", "joe", "^(chat|news)$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again == token {
		t.Error("tokens must be single use")
	}
}

func TestIssueToken_InvalidPattern(t *testing.T) {
	_, err := IssueToken("secret", "joe", "(unclosed")
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
}

// Property: the vhost secret keys the token.
func TestComputeTokenKeyedBySecret_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.String().Draw(t, "secret")
		other := rapid.String().Filter(func(s string) bool { return s != secret }).Draw(t, "other")
		user := rapid.String().Draw(t, "user")
		nonce := rapid.SliceOfN(rapid.Byte(), NonceSize, NonceSize).Draw(t, "nonce")

		if ComputeToken(secret, user, ".*", nonce) == ComputeToken(other, user, ".*", nonce) {
			t.Fatal("different secrets produced the same token")
		}
	})
}

// Property: tokens are deterministic in their inputs and always 128
// lowercase hex characters.
func TestComputeToken_Property(t *testing.T) {
	hex := regexp.MustCompile(`^[0-9a-f]{128}$`)
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.String().Draw(t, "secret")
		user := rapid.String().Draw(t, "user")
		pattern := rapid.String().Draw(t, "pattern")
		nonce := rapid.SliceOfN(rapid.Byte(), NonceSize, NonceSize).Draw(t, "nonce")

		token := ComputeToken(secret, user, pattern, nonce)
		if !hex.MatchString(token) {
			t.Fatalf("token %q is not 128 hex characters", token)
		}
		if ComputeToken(secret, user, pattern, nonce) != token {
			t.Fatal("token derivation is not deterministic")
		}

		other := bytes.Clone(nonce)
		other[0] ^= 0xff
		if ComputeToken(secret, user, pattern, other) == token {
			t.Fatal("nonce does not affect the token")
		}
	})
}

// Property: moving bytes between adjacent fields changes the token.
func TestComputeTokenFieldBoundaries_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		user := rapid.StringN(1, 16, -1).Draw(t, "user")
		pattern := rapid.String().Draw(t, "pattern")
		nonce := make([]byte, NonceSize)

		shifted := ComputeToken("s", user[:len(user)-1], user[len(user)-1:]+pattern, nonce)
		if shifted == ComputeToken("s", user, pattern, nonce) {
			t.Fatal("field boundary shift produced the same token")
		}
	})
}
