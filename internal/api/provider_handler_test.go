package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
)

func newProviderHandler(t *testing.T, env *testEnv) *providerHandler {
	t.Helper()
	enc, err := secrets.NewEphemeral()
	if err != nil {
		t.Fatal(err)
	}
	return &providerHandler{store: env.store, encryptor: enc}
}

func TestProviderHandler_CreateFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	h := newProviderHandler(t, env)

	w := httptest.NewRecorder()
	r := env.request("POST", "/api/v1/providers", map[string]any{
		"template_id":   "gmail",
		"client_id":     "client-1",
		"client_secret": "hunter2",
	})
	h.create(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got store.Provider
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "Gmail" {
		t.Errorf("Name = %q, want template default", got.Name)
	}
	if got.AuthorizeURL == "" || got.TokenURL == "" {
		t.Errorf("endpoints not pre-filled: authorize %q token %q", got.AuthorizeURL, got.TokenURL)
	}
	if !got.UsePKCE {
		t.Error("UsePKCE not taken from template")
	}
}

func TestProviderHandler_CreateUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)
	h := newProviderHandler(t, env)

	w := httptest.NewRecorder()
	r := env.request("POST", "/api/v1/providers", map[string]any{
		"template_id": "fax-machine",
		"client_id":   "client-1",
	})
	h.create(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestProviderHandler_ExplicitValuesWinOverTemplate(t *testing.T) {
	env := newTestEnv(t)
	h := newProviderHandler(t, env)

	w := httptest.NewRecorder()
	r := env.request("POST", "/api/v1/providers", map[string]any{
		"template_id":   "gmail",
		"name":          "Mail (staging)",
		"authorize_url": "https://auth.staging.test/authorize",
		"client_id":     "client-1",
	})
	h.create(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got store.Provider
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "Mail (staging)" {
		t.Errorf("Name = %q, want explicit value", got.Name)
	}
	if got.AuthorizeURL != "https://auth.staging.test/authorize" {
		t.Errorf("AuthorizeURL = %q, want explicit value", got.AuthorizeURL)
	}
	if got.TokenURL != "https://oauth2.googleapis.com/token" {
		t.Errorf("TokenURL = %q, want template default", got.TokenURL)
	}
}
