package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shardlabs/shardbase/internal/realtime"
)

type eventsHandler struct {
	registry *realtime.Registry
}

// sseSink adapts an http.ResponseWriter into a realtime.Sink. Writes are
// serialized because the registry's heartbeat and dispatch run on
// different goroutines.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// stream opens a text/event-stream connection registered for the
// caller's tenant. The initial subscription filter comes from
// comma-separated query parameters; a missing parameter is a wildcard.
func (h *eventsHandler) stream(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := realtime.Filter{
		EventTypes:   splitParam(r.URL.Query().Get("event_types")),
		ShardTypeIDs: splitParam(r.URL.Query().Get("shard_type_ids")),
		ShardIDs:     splitParam(r.URL.Query().Get("shard_ids")),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	connID := uuid.NewString()
	sink := &sseSink{w: w, flusher: flusher}
	if err := h.registry.Register(connID, id.TenantID, id.UserID, sink, filter); err != nil {
		return
	}
	defer h.registry.Unregister(connID)

	// Tell the client its connection ID so it can patch the
	// subscription later.
	hello, err := realtime.NewEvent("connected", id.TenantID, "", "", map[string]string{
		"connection_id": connID,
	})
	if err == nil {
		if frame, err := hello.Encode(); err == nil {
			if sink.Send(frame) != nil {
				return
			}
		}
	}

	<-r.Context().Done()
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ownsConnection checks that the connection belongs to the caller's
// tenant. Unknown and foreign connections look identical to the client.
func (h *eventsHandler) ownsConnection(r *http.Request) bool {
	id, _ := identityFrom(r.Context())
	tenantID, _, err := h.registry.Owner(r.PathValue("id"))
	return err == nil && tenantID == id.TenantID
}

func (h *eventsHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ownsConnection(r) {
		writeError(w, http.StatusNotFound, "unknown connection")
		return
	}
	f, err := h.registry.Subscription(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown connection")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *eventsHandler) patchSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ownsConnection(r) {
		writeError(w, http.StatusNotFound, "unknown connection")
		return
	}
	var patch realtime.FilterPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.UpdateSubscription(r.PathValue("id"), patch); err != nil {
		writeError(w, http.StatusNotFound, "unknown connection")
		return
	}
	f, err := h.registry.Subscription(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown connection")
		return
	}
	writeJSON(w, http.StatusOK, f)
}
