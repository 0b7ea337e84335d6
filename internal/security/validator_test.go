package security

import (
	"errors"
	"testing"
	"time"
)

func TestValidate_RoundTrip(t *testing.T) {
	v := NewValidator("test-secret", "labstate-auth", "labstate-api")
	token, err := v.Issue("user-1", "org-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	id, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.Actor != "user-1" || id.OrgID != "org-1" {
		t.Errorf("identity = %+v", id)
	}
}

func TestValidate_Expired(t *testing.T) {
	v := NewValidator("test-secret", "labstate-auth", "labstate-api")
	token, err := v.Issue("user-1", "org-1", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	issuer := NewValidator("secret-a", "labstate-auth", "labstate-api")
	token, _ := issuer.Issue("user-1", "org-1", time.Minute)

	v := NewValidator("secret-b", "labstate-auth", "labstate-api")
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_WrongIssuerOrAudience(t *testing.T) {
	issuer := NewValidator("test-secret", "other-auth", "labstate-api")
	token, _ := issuer.Issue("user-1", "org-1", time.Minute)

	v := NewValidator("test-secret", "labstate-auth", "labstate-api")
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("issuer mismatch: err = %v, want ErrInvalidToken", err)
	}

	issuer = NewValidator("test-secret", "labstate-auth", "other-api")
	token, _ = issuer.Issue("user-1", "org-1", time.Minute)
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("audience mismatch: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_MissingOrg(t *testing.T) {
	v := NewValidator("test-secret", "labstate-auth", "labstate-api")
	token, _ := v.Issue("user-1", "", time.Minute)
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	v := NewValidator("test-secret", "labstate-auth", "labstate-api")
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := v.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q) err = %v, want ErrInvalidToken", tok, err)
		}
	}
}
