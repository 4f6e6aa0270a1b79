package connect

import "testing"

func TestParseProviderURL(t *testing.T) {
	t.Run("accepts https url", func(t *testing.T) {
		if _, err := parseProviderURL("https://accounts.google.com/o/oauth2/v2/auth"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("accepts localhost http url", func(t *testing.T) {
		if _, err := parseProviderURL("http://127.0.0.1:8080/authorize"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects javascript scheme", func(t *testing.T) {
		if _, err := parseProviderURL("javascript:alert(1)"); err == nil {
			t.Fatal("expected error for javascript scheme")
		}
	})

	t.Run("rejects missing host", func(t *testing.T) {
		if _, err := parseProviderURL("https:///authorize"); err == nil {
			t.Fatal("expected error for missing host")
		}
	})
}

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := CodeChallenge(verifier); got != want {
		t.Fatalf("CodeChallenge = %s, want %s", got, want)
	}
}

func TestStateStore_ConsumesOnValidate(t *testing.T) {
	s := NewStateStore()
	token, err := s.Create("t1", "int-1", "verifier")
	if err != nil {
		t.Fatal(err)
	}

	entry, ok := s.Validate(token)
	if !ok {
		t.Fatal("expected valid state")
	}
	if entry.TenantID != "t1" || entry.IntegrationID != "int-1" || entry.CodeVerifier != "verifier" {
		t.Fatalf("entry mismatch: %+v", entry)
	}

	if _, ok := s.Validate(token); ok {
		t.Fatal("state token must be single-use")
	}
}

func TestStateStore_RejectsUnknown(t *testing.T) {
	s := NewStateStore()
	if _, ok := s.Validate("deadbeef"); ok {
		t.Fatal("expected unknown state to be rejected")
	}
}
