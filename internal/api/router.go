package api

import (
	"log/slog"
	"net/http"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/connect"
	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/sso"
	"github.com/shardlabs/shardbase/internal/store"
	"github.com/shardlabs/shardbase/internal/webhook"
)

// RouterDeps holds the dependencies needed by the HTTP API router.
type RouterDeps struct {
	Store       store.Store
	Validator   *auth.Validator
	Registry    *realtime.Registry
	Events      realtime.Publisher     // fan-out target for mutation events
	Recorder    *audit.Recorder        // optional; enables audit records
	FlowManager *connect.FlowManager   // optional; enables OAuth connect flows
	Encryptor   *secrets.AgeEncryptor  // optional; enables secret encryption
	Dispatcher  *webhook.Dispatcher    // optional; enables webhook test delivery
	SSO         *sso.Service           // optional; enables SAML login
	UploadDir   string
	Logger      *slog.Logger
}

// NewRouter creates an http.Handler with all API routes. Everything under
// /api/v1 requires a valid token except health, the SAML endpoints, and
// the OAuth connect callback.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()
	api := http.NewServeMux()

	editor := func(h http.HandlerFunc) http.HandlerFunc { return requireRole(auth.RoleEditor, h) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return requireRole(auth.RoleAdmin, h) }

	tn := &tenantHandler{store: deps.Store, recorder: deps.Recorder}
	api.HandleFunc("GET /api/v1/tenant", tn.get)
	api.HandleFunc("PUT /api/v1/tenant", admin(tn.update))

	col := &collectionHandler{store: deps.Store, recorder: deps.Recorder}
	api.HandleFunc("GET /api/v1/collections", col.list)
	api.HandleFunc("POST /api/v1/collections", editor(col.create))
	api.HandleFunc("GET /api/v1/collections/{id}", col.get)
	api.HandleFunc("PUT /api/v1/collections/{id}", editor(col.update))
	api.HandleFunc("DELETE /api/v1/collections/{id}", editor(col.delete))

	st := &shardTypeHandler{store: deps.Store, recorder: deps.Recorder}
	api.HandleFunc("GET /api/v1/shard-types", st.list)
	api.HandleFunc("POST /api/v1/shard-types", admin(st.create))
	api.HandleFunc("GET /api/v1/shard-types/{id}", st.get)
	api.HandleFunc("PUT /api/v1/shard-types/{id}", admin(st.update))
	api.HandleFunc("DELETE /api/v1/shard-types/{id}", admin(st.delete))

	sh := &shardHandler{store: deps.Store, recorder: deps.Recorder, events: deps.Events, logger: deps.Logger}
	api.HandleFunc("GET /api/v1/shards", sh.list)
	api.HandleFunc("POST /api/v1/shards", editor(sh.create))
	api.HandleFunc("GET /api/v1/shards/{id}", sh.get)
	api.HandleFunc("PUT /api/v1/shards/{id}", editor(sh.update))
	api.HandleFunc("DELETE /api/v1/shards/{id}", editor(sh.delete))
	api.HandleFunc("GET /api/v1/shards/{id}/revisions", sh.listRevisions)
	api.HandleFunc("GET /api/v1/shards/{id}/revisions/{rev}", sh.getRevision)
	api.HandleFunc("POST /api/v1/shards/{id}/revisions/{rev}/restore", editor(sh.restoreRevision))

	wh := &webhookHandler{store: deps.Store, recorder: deps.Recorder, encryptor: deps.Encryptor, dispatcher: deps.Dispatcher}
	api.HandleFunc("GET /api/v1/webhooks", admin(wh.list))
	api.HandleFunc("POST /api/v1/webhooks", admin(wh.create))
	api.HandleFunc("GET /api/v1/webhooks/{id}", admin(wh.get))
	api.HandleFunc("PUT /api/v1/webhooks/{id}", admin(wh.update))
	api.HandleFunc("DELETE /api/v1/webhooks/{id}", admin(wh.delete))
	api.HandleFunc("POST /api/v1/webhooks/{id}/test", admin(wh.test))
	api.HandleFunc("GET /api/v1/webhooks/{id}/deliveries", admin(wh.deliveries))

	aud := &auditHandler{store: deps.Store}
	api.HandleFunc("GET /api/v1/audit", aud.list)

	mdl := &modelHandler{store: deps.Store, recorder: deps.Recorder}
	api.HandleFunc("GET /api/v1/models", mdl.list)
	api.HandleFunc("POST /api/v1/models", admin(mdl.create))
	api.HandleFunc("GET /api/v1/models/{id}", mdl.get)
	api.HandleFunc("PUT /api/v1/models/{id}", admin(mdl.update))
	api.HandleFunc("DELETE /api/v1/models/{id}", admin(mdl.delete))

	pv := &providerHandler{store: deps.Store, recorder: deps.Recorder, encryptor: deps.Encryptor}
	api.HandleFunc("GET /api/v1/provider-templates", admin(pv.templates))
	api.HandleFunc("GET /api/v1/providers", admin(pv.list))
	api.HandleFunc("POST /api/v1/providers", admin(pv.create))
	api.HandleFunc("GET /api/v1/providers/{id}", admin(pv.get))
	api.HandleFunc("PUT /api/v1/providers/{id}", admin(pv.update))
	api.HandleFunc("DELETE /api/v1/providers/{id}", admin(pv.delete))

	ig := &integrationHandler{store: deps.Store, recorder: deps.Recorder, flow: deps.FlowManager}
	api.HandleFunc("GET /api/v1/integrations", ig.list)
	api.HandleFunc("POST /api/v1/integrations", admin(ig.create))
	api.HandleFunc("GET /api/v1/integrations/{id}", ig.get)
	api.HandleFunc("DELETE /api/v1/integrations/{id}", admin(ig.delete))
	api.HandleFunc("GET /api/v1/integrations/{id}/authorize", admin(ig.authorize))
	api.HandleFunc("GET /api/v1/integrations/{id}/status", ig.status)
	api.HandleFunc("POST /api/v1/integrations/{id}/refresh", admin(ig.refresh))
	api.HandleFunc("POST /api/v1/integrations/{id}/disconnect", admin(ig.disconnect))

	dash := &dashboardHandler{store: deps.Store, validator: deps.Validator, registry: deps.Registry}
	api.HandleFunc("GET /api/v1/dashboard", dash.overview)
	api.HandleFunc("GET /api/v1/dashboard/activity", dash.activity)
	api.HandleFunc("GET /api/v1/dashboard/type-activity", dash.typeActivity)

	up := &uploadHandler{store: deps.Store, recorder: deps.Recorder, dir: deps.UploadDir}
	api.HandleFunc("POST /api/v1/uploads", editor(up.create))
	api.HandleFunc("GET /api/v1/uploads/{id}", up.get)
	api.HandleFunc("PUT /api/v1/uploads/{id}/chunk", editor(up.append))
	api.HandleFunc("POST /api/v1/uploads/{id}/complete", editor(up.complete))
	api.HandleFunc("DELETE /api/v1/uploads/{id}", editor(up.abort))

	ah := &authHandler{store: deps.Store, recorder: deps.Recorder}
	api.HandleFunc("GET /api/v1/auth/me", ah.me)
	api.HandleFunc("POST /api/v1/auth/logout", ah.logout)
	api.HandleFunc("GET /api/v1/auth/sessions", admin(ah.sessions))
	api.HandleFunc("POST /api/v1/auth/sessions/{id}/revoke", admin(ah.revokeSession))

	uh := &userHandler{store: deps.Store, recorder: deps.Recorder}
	api.HandleFunc("GET /api/v1/users", uh.list)
	api.HandleFunc("PUT /api/v1/users/{id}/role", admin(uh.updateRole))

	if deps.Registry != nil {
		ev := &eventsHandler{registry: deps.Registry}
		api.HandleFunc("GET /api/v1/events", ev.stream)
		api.HandleFunc("GET /api/v1/events/{id}/subscription", ev.getSubscription)
		api.HandleFunc("PATCH /api/v1/events/{id}/subscription", ev.patchSubscription)
	}

	mux.Handle("/api/v1/", authMiddleware(deps.Validator, api))

	// Public routes. Specific patterns take precedence over the
	// authenticated /api/v1/ subtree.
	mux.HandleFunc("GET /api/v1/health", healthCheck)
	if deps.FlowManager != nil {
		cb := &integrationHandler{store: deps.Store, recorder: deps.Recorder, flow: deps.FlowManager}
		mux.HandleFunc("GET /api/v1/connect/callback", cb.callback)
	}
	if deps.SSO != nil {
		mux.Handle("/saml/", deps.SSO.Handler())
		mux.HandleFunc("GET /api/v1/auth/login", deps.SSO.StartLogin)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(handler)
	return handler
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
