// FilePath: internal/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"
)

// Role is the self-declared identity of a connection.
type Role string

const (
	RoleUnset     Role = ""
	RoleDevice    Role = "device"
	RoleDashboard Role = "dashboard"
)

// Registry events, emitted with (connID string, role Role).
const (
	EventRegistered   = "conn.registered"
	EventUnregistered = "conn.unregistered"
)

var (
	// ErrDeviceUnavailable means no device address is known yet.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrInvalidRole is returned for role hints outside the accepted set.
	ErrInvalidRole = errors.New("invalid role")
)

// roleHints maps every accepted wire value onto a role.
var roleHints = map[string]Role{
	"device":    RoleDevice,
	"esp32":     RoleDevice,
	"dashboard": RoleDashboard,
	"frontend":  RoleDashboard,
}

// ParseRole resolves a role hint. Matching is case-insensitive.
func ParseRole(hint string) (Role, bool) {
	r, ok := roleHints[strings.ToLower(strings.TrimSpace(hint))]
	return r, ok
}

// Conn is a live bidirectional channel as seen by the registry.
type Conn interface {
	ID() string
	Send(msg []byte) error
	IsOpen() bool
	RemoteAddr() string
}

// ContextSender is implemented by connections that can wait for room in
// their outbound queue instead of failing fast.
type ContextSender interface {
	SendContext(ctx context.Context, msg []byte) error
}

// AddressStore persists the last one-shot device address across restarts.
type AddressStore interface {
	SaveDeviceAddress(ctx context.Context, addr string) error
	LoadDeviceAddress(ctx context.Context) (string, error)
}

type entry struct {
	conn Conn
	role Role
	seq  uint64
}

// Registry maps connections to roles and tracks the device address.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*entry
	seq     uint64
	oneShot string
	store   AddressStore
	events  *nuts.EventEmitter
}

// New creates a Registry. store may be nil.
func New(store AddressStore) *Registry {
	return &Registry{
		conns:  make(map[string]*entry),
		store:  store,
		events: nuts.NewEventEmitter(),
	}
}

// Track adds a freshly established connection with no role.
func (r *Registry) Track(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; !ok {
		r.conns[conn.ID()] = &entry{conn: conn}
	}
}

// Register assigns role to conn. Explicit registration always wins over
// an earlier one; repeating the same role is a no-op.
func (r *Registry) Register(conn Conn, role Role) error {
	if role != RoleDevice && role != RoleDashboard {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	r.mu.Lock()
	e, ok := r.conns[conn.ID()]
	if !ok {
		e = &entry{conn: conn}
		r.conns[conn.ID()] = e
	}
	if e.role == role {
		r.mu.Unlock()
		return nil
	}
	r.seq++
	e.role = role
	e.seq = r.seq
	r.mu.Unlock()

	nuts.L.Infof("[Registry] Connection %s registered as %s", conn.ID(), role)
	if err := r.events.Emit(EventRegistered, conn.ID(), role); err != nil {
		nuts.L.Warnf("[Registry] %s listener failed: %v", EventRegistered, err)
	}
	return nil
}

// RegisterHint assigns role only if conn has none yet. It reports whether
// the role was applied.
func (r *Registry) RegisterHint(conn Conn, role Role) bool {
	if role != RoleDevice && role != RoleDashboard {
		return false
	}
	r.mu.RLock()
	e, ok := r.conns[conn.ID()]
	unset := !ok || e.role == RoleUnset
	r.mu.RUnlock()
	if !unset {
		return false
	}
	return r.Register(conn, role) == nil
}

// Unregister removes conn and returns the role it held.
func (r *Registry) Unregister(conn Conn) Role {
	r.mu.Lock()
	e, ok := r.conns[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return RoleUnset
	}
	delete(r.conns, conn.ID())
	r.mu.Unlock()

	nuts.L.Infof("[Registry] Connection %s (%s) removed", conn.ID(), roleName(e.role))
	if err := r.events.Emit(EventUnregistered, conn.ID(), e.role); err != nil {
		nuts.L.Warnf("[Registry] %s listener failed: %v", EventUnregistered, err)
	}
	return e.role
}

// RoleOf returns the role of conn, RoleUnset when unknown.
func (r *Registry) RoleOf(conn Conn) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[conn.ID()]; ok {
		return e.role
	}
	return RoleUnset
}

// FindAllByRole returns the open connections holding role.
func (r *Registry) FindAllByRole(role Role) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		if e.role == role && e.conn.IsOpen() {
			out = append(out, e.conn)
		}
	}
	return out
}

// Count returns the number of open connections holding role.
func (r *Registry) Count(role Role) int {
	return len(r.FindAllByRole(role))
}

// RecordOneShotAddress stores an address obtained outside the persistent
// channel. It takes precedence over channel peer addresses.
func (r *Registry) RecordOneShotAddress(ctx context.Context, addr string) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	r.mu.Lock()
	changed := r.oneShot != addr
	r.oneShot = addr
	r.mu.Unlock()
	if !changed {
		return
	}
	nuts.L.Infof("[Registry] Device address set to %s", addr)
	if r.store != nil {
		if err := r.store.SaveDeviceAddress(ctx, addr); err != nil {
			nuts.L.Warnf("[Registry] Failed to persist device address: %v", err)
		}
	}
}

// Restore loads a previously persisted one-shot address.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	addr, err := r.store.LoadDeviceAddress(ctx)
	if err != nil {
		return err
	}
	if addr != "" {
		r.mu.Lock()
		r.oneShot = addr
		r.mu.Unlock()
		nuts.L.Infof("[Registry] Restored device address %s", addr)
	}
	return nil
}

// FindDeviceAddress returns the most authoritative known device address.
func (r *Registry) FindDeviceAddress() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.oneShot != "" {
		return r.oneShot, nil
	}
	var latest *entry
	for _, e := range r.conns {
		if e.role != RoleDevice || e.conn.RemoteAddr() == "" {
			continue
		}
		if latest == nil || e.seq > latest.seq {
			latest = e
		}
	}
	if latest == nil {
		return "", ErrDeviceUnavailable
	}
	return hostOnly(latest.conn.RemoteAddr()), nil
}

// Broadcast marshals msg once and sends it to every open connection holding
// one of roles. Per-connection failures are logged and skipped. It returns
// the number of successful deliveries.
func (r *Registry) Broadcast(msg any, roles ...Role) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal broadcast: %w", err)
	}
	delivered := 0
	for _, role := range roles {
		for _, c := range r.FindAllByRole(role) {
			if err := c.Send(data); err != nil {
				nuts.L.Warnf("[Registry] Send to %s (%s) failed: %v", c.ID(), role, err)
				continue
			}
			delivered++
		}
	}
	return delivered, nil
}

// Deliver sends msg to every open connection holding role and, where the
// connection supports it, waits for queue room until ctx ends. Every failed
// send is reported in the joined error.
func (r *Registry) Deliver(ctx context.Context, msg any, role Role) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal delivery: %w", err)
	}
	delivered := 0
	var failures []error
	for _, c := range r.FindAllByRole(role) {
		if cs, ok := c.(ContextSender); ok {
			err = cs.SendContext(ctx, data)
		} else {
			err = c.Send(data)
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("send to %s: %w", c.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(failures...)
}

// SendTo marshals msg and sends it to a single connection.
func SendTo(conn Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return conn.Send(data)
}

// On registers a callback for a registry event.
func (r *Registry) On(event, handlerID string, handler func(connID string, role Role)) {
	r.events.On(event, handlerID, func(args ...interface{}) {
		if len(args) < 2 {
			return
		}
		id, _ := args[0].(string)
		role, _ := args[1].(Role)
		handler(id, role)
	})
}

// Stats is a point-in-time view used by the health endpoint.
type Stats struct {
	Devices       int       `json:"devices"`
	Dashboards    int       `json:"dashboards"`
	Unregistered  int       `json:"unregistered"`
	DeviceAddress string    `json:"device_address,omitempty"`
	At            time.Time `json:"at"`
}

// Stats counts the tracked connections per role.
func (r *Registry) Stats() Stats {
	s := Stats{At: time.Now().UTC()}
	r.mu.RLock()
	for _, e := range r.conns {
		switch e.role {
		case RoleDevice:
			s.Devices++
		case RoleDashboard:
			s.Dashboards++
		default:
			s.Unregistered++
		}
	}
	r.mu.RUnlock()
	s.DeviceAddress, _ = r.FindDeviceAddress()
	return s
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func roleName(r Role) string {
	if r == RoleUnset {
		return "unset"
	}
	return string(r)
}
