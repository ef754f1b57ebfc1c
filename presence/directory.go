// Package presence tracks live client connections per (user, dashboard) and
// fans resource change events out to them.
package presence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-pushsync/core"
)

// Conn is one live downstream connection, usually a websocket. Send must be
// safe for concurrent use.
type Conn interface {
	Send(ctx context.Context, envelope Envelope) error
}

// Envelope is the routed form of one change event as delivered to a
// connection.
type Envelope struct {
	Event       string         `json:"event"`
	UserID      string         `json:"user_id"`
	DashboardID string         `json:"dashboard_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	SentAt      time.Time      `json:"sent_at"`
}

type Directory struct {
	mu     sync.RWMutex
	byUser map[string]map[string]map[Conn]struct{}
	logger core.Logger
	now    func() time.Time
}

type DirectoryOption func(*Directory)

func WithLogger(logger core.Logger) DirectoryOption {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithNow(now func() time.Time) DirectoryOption {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDirectory(opts ...DirectoryOption) *Directory {
	directory := &Directory{
		byUser: map[string]map[string]map[Conn]struct{}{},
		logger: glog.Ensure(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(directory)
	}
	return directory
}

// Bind attaches a connection under (userID, dashboardID). Binding the same
// connection twice is a no-op.
func (d *Directory) Bind(userID string, dashboardID string, conn Conn) error {
	if d == nil {
		return fmt.Errorf("presence: directory is not configured")
	}
	userID = strings.TrimSpace(userID)
	dashboardID = strings.TrimSpace(dashboardID)
	if userID == "" || dashboardID == "" {
		return fmt.Errorf("presence: user id and dashboard id are required")
	}
	if conn == nil {
		return fmt.Errorf("presence: connection is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dashboards, ok := d.byUser[userID]
	if !ok {
		dashboards = map[string]map[Conn]struct{}{}
		d.byUser[userID] = dashboards
	}
	conns, ok := dashboards[dashboardID]
	if !ok {
		conns = map[Conn]struct{}{}
		dashboards[dashboardID] = conns
	}
	conns[conn] = struct{}{}
	return nil
}

// Unbind detaches a connection. Unknown connections are ignored.
func (d *Directory) Unbind(userID string, dashboardID string, conn Conn) {
	if d == nil || conn == nil {
		return
	}
	userID = strings.TrimSpace(userID)
	dashboardID = strings.TrimSpace(dashboardID)

	d.mu.Lock()
	defer d.mu.Unlock()

	dashboards, ok := d.byUser[userID]
	if !ok {
		return
	}
	conns, ok := dashboards[dashboardID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(dashboards, dashboardID)
	}
	if len(dashboards) == 0 {
		delete(d.byUser, userID)
	}
}

// ConnectionCount reports how many connections the user currently has bound
// across all dashboards.
func (d *Directory) ConnectionCount(userID string) int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := 0
	for _, conns := range d.byUser[strings.TrimSpace(userID)] {
		total += len(conns)
	}
	return total
}

// Route delivers one event. The DashboardAll sentinel fans out to every
// dashboard the user has connections on; a concrete dashboard id reaches its
// own connections plus any bound under the sentinel. Send failures are
// logged and skipped; the return value counts successful deliveries.
func (d *Directory) Route(ctx context.Context, userID string, dashboardID string, eventName string, payload map[string]any) int {
	if d == nil {
		return 0
	}
	userID = strings.TrimSpace(userID)
	dashboardID = strings.TrimSpace(dashboardID)
	if userID == "" || dashboardID == "" {
		return 0
	}
	if ctx == nil {
		ctx = context.Background()
	}

	targets := d.snapshotTargets(userID, dashboardID)
	if len(targets) == 0 {
		return 0
	}

	sentAt := d.now().UTC()
	delivered := 0
	for _, target := range targets {
		envelope := Envelope{
			Event:       eventName,
			UserID:      userID,
			DashboardID: target.dashboardID,
			Payload:     payload,
			SentAt:      sentAt,
		}
		if err := target.conn.Send(ctx, envelope); err != nil {
			d.logger.Warn(
				"presence delivery failed",
				"user_id", userID,
				"dashboard_id", target.dashboardID,
				"event", eventName,
				"error", err.Error(),
			)
			continue
		}
		delivered++
	}
	return delivered
}

type routeTarget struct {
	dashboardID string
	conn        Conn
}

func (d *Directory) snapshotTargets(userID string, dashboardID string) []routeTarget {
	d.mu.RLock()
	defer d.mu.RUnlock()

	dashboards, ok := d.byUser[userID]
	if !ok {
		return nil
	}

	var targets []routeTarget
	appendConns := func(boundDashboard string, deliveredAs string) {
		for conn := range dashboards[boundDashboard] {
			targets = append(targets, routeTarget{dashboardID: deliveredAs, conn: conn})
		}
	}

	if dashboardID == core.DashboardAll {
		for boundDashboard := range dashboards {
			appendConns(boundDashboard, boundDashboard)
		}
		return targets
	}

	appendConns(dashboardID, dashboardID)
	appendConns(core.DashboardAll, dashboardID)
	return targets
}

var _ core.EventRouter = (*Directory)(nil)
