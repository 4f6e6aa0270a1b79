package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateConnection is returned when a connection ID is already
	// registered. Re-registration is rejected rather than replacing the
	// existing connection.
	ErrDuplicateConnection = errors.New("connection id already registered")

	// ErrUnknownConnection is returned when an operation references a
	// connection ID that is not registered.
	ErrUnknownConnection = errors.New("unknown connection")

	errClosed = errors.New("connection closed")
)

// Sink is the write side of one streaming connection. Send writes one
// complete frame; an error marks the connection dead.
type Sink interface {
	Send(frame []byte) error
}

// connection is one registered stream. The mutex serializes frame writes
// (so deliveries to a connection keep dispatch order) and guards filter
// and the closed flag.
type connection struct {
	id       string
	tenantID string
	userID   string
	sink     Sink

	mu     sync.Mutex
	filter Filter
	closed bool
}

// deliver writes the frame if the connection is open and the event passes
// its filter.
func (c *connection) deliver(e Event, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	if !c.filter.Matches(e) {
		return nil
	}
	return c.sink.Send(frame)
}

func (c *connection) sendRaw(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return c.sink.Send(frame)
}

func (c *connection) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Registry tracks open streaming connections and delivers matching events.
// All access to the connection map goes through its methods; a single
// shared heartbeat driver (Run) covers every connection in the process.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*connection
	byTenant map[string]map[string]*connection

	heartbeatEvery time.Duration
	logger         *slog.Logger
}

// NewRegistry creates a Registry. heartbeatEvery controls the shared
// heartbeat cadence; zero selects the 30 second default.
func NewRegistry(heartbeatEvery time.Duration, logger *slog.Logger) *Registry {
	if heartbeatEvery <= 0 {
		heartbeatEvery = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:          make(map[string]*connection),
		byTenant:       make(map[string]map[string]*connection),
		heartbeatEvery: heartbeatEvery,
		logger:         logger,
	}
}

// Register adds a connection and makes it a delivery target for subsequent
// events. Duplicate IDs are rejected with ErrDuplicateConnection.
func (r *Registry) Register(id, tenantID, userID string, sink Sink, initial Filter) error {
	c := &connection{
		id:       id,
		tenantID: tenantID,
		userID:   userID,
		sink:     sink,
		filter:   initial,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[id]; exists {
		return ErrDuplicateConnection
	}
	r.conns[id] = c
	tenant := r.byTenant[tenantID]
	if tenant == nil {
		tenant = make(map[string]*connection)
		r.byTenant[tenantID] = tenant
	}
	tenant[id] = c

	r.logger.Debug("connection registered",
		"connection_id", id, "tenant_id", tenantID, "user_id", userID)
	return nil
}

// Unregister removes a connection. Once it returns, no further frames are
// written to the connection's sink, including from concurrent dispatches.
// Unregistering an unknown ID is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		tenant := r.byTenant[c.tenantID]
		delete(tenant, id)
		if len(tenant) == 0 {
			delete(r.byTenant, c.tenantID)
		}
	}
	r.mu.Unlock()

	if ok {
		c.close()
		r.logger.Debug("connection unregistered", "connection_id", id)
	}
}

// UpdateSubscription applies a partial filter update to a connection.
func (r *Registry) UpdateSubscription(id string, patch FilterPatch) error {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	c.mu.Lock()
	c.filter = c.filter.Apply(patch)
	c.mu.Unlock()
	return nil
}

// Owner reports the tenant and user that registered a connection.
func (r *Registry) Owner(id string) (tenantID, userID string, err error) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return "", "", ErrUnknownConnection
	}
	return c.tenantID, c.userID, nil
}

// Subscription returns the current filter for a connection.
func (r *Registry) Subscription(id string) (Filter, error) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return Filter{}, ErrUnknownConnection
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter, nil
}

// Dispatch delivers the event to every connection in the event's tenant
// whose filter matches. A failed write never aborts delivery to the
// remaining connections; the failed connection is removed instead.
func (r *Registry) Dispatch(e Event) {
	frame, err := e.Encode()
	if err != nil {
		r.logger.Error("drop undeliverable event", "type", e.Type, "error", err)
		return
	}

	r.mu.RLock()
	targets := make([]*connection, 0, len(r.byTenant[e.TenantID]))
	for _, c := range r.byTenant[e.TenantID] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.deliver(e, frame); err != nil && !errors.Is(err, errClosed) {
			r.logger.Warn("event write failed, dropping connection",
				"connection_id", c.id, "tenant_id", c.tenantID, "error", err)
			r.Unregister(c.id)
		}
	}
}

// Publish lets the Registry act as an event Publisher.
func (r *Registry) Publish(_ context.Context, e Event) {
	r.Dispatch(e)
}

// ConnectionCount returns the number of open connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnectionsByTenant returns the connection IDs registered for a tenant,
// sorted for stable output.
func (r *Registry) ConnectionsByTenant(tenantID string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byTenant[tenantID]))
	for id := range r.byTenant[tenantID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Run drives the shared heartbeat until ctx is cancelled. One driver
// serves every connection; connections never own timers of their own.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.heartbeat()
		}
	}
}

// heartbeat writes a comment frame to every open connection. A write
// failure takes the same implicit-disconnect path as event dispatch.
func (r *Registry) heartbeat() {
	r.mu.RLock()
	targets := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.sendRaw(heartbeatFrame); err != nil && !errors.Is(err, errClosed) {
			r.logger.Warn("heartbeat write failed, dropping connection",
				"connection_id", c.id, "tenant_id", c.tenantID, "error", err)
			r.Unregister(c.id)
		}
	}
}
