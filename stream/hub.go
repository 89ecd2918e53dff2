// Package stream implements the role-scoped live subscription hub. Each
// subscription is a long-lived push stream: on every relevant change the hub
// re-runs the subscription's query and delivers a full replacement snapshot,
// never an incremental patch.
package stream

import (
	"context"
	"errors"
	"log"
	"sync"

	"gorm.io/gorm"

	"github.com/renowix/surveyor-api/metrics"
	"github.com/renowix/surveyor-api/models"
)

// Kind identifies one of the four query shapes the store serves.
type Kind string

const (
	// KindSupervisorHistory: projects authored by the caller, newest first.
	// Deliberately not filtered by status, so a quotation the caller
	// authored stays visible in history after an admin locks it.
	KindSupervisorHistory Kind = "supervisor_history"
	// KindSupervisorAssigned: locked projects assigned to the caller.
	KindSupervisorAssigned Kind = "supervisor_assigned"
	// KindAdminInbox: every project, newest first.
	KindAdminInbox Kind = "admin_inbox"
	// KindAdminRoster: every supervisor profile.
	KindAdminRoster Kind = "admin_roster"
)

// ErrPermissionDenied is returned when a subscription is requested for a
// query the caller's role is not allowed to see.
var ErrPermissionDenied = errors.New("subscription rejected: role is not permitted to run this query")

// Query is a role-scoped subscription request.
type Query struct {
	Kind Kind
	UID  string // caller's identity, used by the supervisor-scoped kinds
}

// allowedFor checks the query against the caller's role. Admin kinds are
// only ever served to a confirmed admin.
func (q Query) allowedFor(role string) bool {
	switch q.Kind {
	case KindSupervisorHistory, KindSupervisorAssigned:
		return q.UID != ""
	case KindAdminInbox, KindAdminRoster:
		return role == models.RoleAdmin
	default:
		return false
	}
}

// topic returns the change topic that invalidates this query.
func (q Query) topic() string {
	if q.Kind == KindAdminRoster {
		return TopicProfiles
	}
	return TopicProjects
}

// Snapshot is a full replacement of a subscription's view. Exactly one of
// Projects or Profiles is populated, depending on the query kind.
type Snapshot struct {
	Kind     Kind
	Projects []models.Project
	Profiles []models.Profile
}

// Subscription is a live handle delivering snapshots until cancelled.
// Snapshot and error channels hold only the latest value: a slow consumer
// sees the freshest state, not a backlog.
type Subscription struct {
	query     Query
	snapshots chan Snapshot
	errs      chan error
	done      chan struct{}
	once      sync.Once
	hub       *Hub
}

// Query returns the query this subscription serves.
func (s *Subscription) Query() Query {
	return s.query
}

// Snapshots is the delivery channel. Every value is a full replacement view.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Errors reports delivery failures. An error is retryable and does not end
// the subscription; sibling subscriptions are unaffected.
func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// Done is closed when the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel tears the subscription down. Idempotent; after Cancel returns no
// further delivery occurs, and results of queries already in flight are
// discarded rather than applied.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

func (s *Subscription) cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Hub owns every live subscription for this process and refreshes them when
// a change notification arrives.
type Hub struct {
	db       *gorm.DB
	notifier Notifier

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewHub creates a hub over the given store and change notifier. The
// notifier may be nil, in which case writes refresh local subscribers
// directly and no cross-process fan-out happens.
func NewHub(db *gorm.DB, notifier Notifier) *Hub {
	return &Hub{
		db:       db,
		notifier: notifier,
		subs:     make(map[*Subscription]struct{}),
	}
}

var hubInstance *Hub

// GetHub returns the process-wide hub instance.
func GetHub() *Hub {
	return hubInstance
}

// SetHub sets the process-wide hub instance (wired in main, replaced in tests).
func SetHub(h *Hub) {
	hubInstance = h
}

// Subscribe establishes a live subscription for the caller's role and
// pushes an initial snapshot before returning. Queries outside the role's
// scope are rejected with ErrPermissionDenied.
func (h *Hub) Subscribe(role string, query Query) (*Subscription, error) {
	if !query.allowedFor(role) {
		return nil, ErrPermissionDenied
	}

	sub := &Subscription{
		query:     query,
		snapshots: make(chan Snapshot, 1),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
		hub:       h,
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	metrics.Get().ActiveSubscriptions.Inc()

	h.refresh(sub)
	return sub, nil
}

// SubscribeAdmin establishes the two admin subscriptions (inbox and roster)
// as a unit: both succeed or neither is left behind.
func (h *Hub) SubscribeAdmin(role string) (inbox, roster *Subscription, err error) {
	inbox, err = h.Subscribe(role, Query{Kind: KindAdminInbox})
	if err != nil {
		return nil, nil, err
	}
	roster, err = h.Subscribe(role, Query{Kind: KindAdminRoster})
	if err != nil {
		inbox.Cancel()
		return nil, nil, err
	}
	return inbox, roster, nil
}

// Run consumes change notifications until the context ends. Without a
// notifier it blocks on the context so callers can treat both modes the same.
func (h *Hub) Run(ctx context.Context) error {
	if h.notifier == nil {
		<-ctx.Done()
		return nil
	}

	events, stop, err := h.notifier.Listen(ctx)
	if err != nil {
		return err
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case topic, ok := <-events:
			if !ok {
				return nil
			}
			h.refreshTopic(topic)
		}
	}
}

// NotifyProjectsChanged is called by writers after a successful project
// write. With a notifier the refresh travels through pub/sub so every
// replica (including this one) refreshes; otherwise it refreshes locally.
func (h *Hub) NotifyProjectsChanged(ctx context.Context) {
	h.notify(ctx, TopicProjects)
}

// NotifyProfilesChanged is called after a successful profile write.
func (h *Hub) NotifyProfilesChanged(ctx context.Context) {
	h.notify(ctx, TopicProfiles)
}

func (h *Hub) notify(ctx context.Context, topic string) {
	if h.notifier != nil {
		if err := h.notifier.Publish(ctx, topic); err == nil {
			return
		} else {
			log.Printf("warning: change notification publish failed, refreshing locally: %v", err)
		}
	}
	h.refreshTopic(topic)
}

// refreshTopic re-runs every subscription scoped to the changed collection.
func (h *Hub) refreshTopic(topic string) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		if sub.query.topic() == topic {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		h.refresh(sub)
	}
}

// refresh runs one subscription's query and delivers the result. A query
// failure surfaces on the subscription's own error channel and leaves every
// sibling untouched.
func (h *Hub) refresh(sub *Subscription) {
	if sub.cancelled() {
		return
	}

	snapshot, err := h.runQuery(sub.query)

	// A cancellation while the query was in flight discards the result.
	if sub.cancelled() {
		return
	}

	if err != nil {
		metrics.Get().SubscriptionErrors.WithLabelValues(string(sub.query.Kind)).Inc()
		select {
		case <-sub.errs:
		default:
		}
		select {
		case sub.errs <- err:
		case <-sub.done:
		}
		return
	}

	metrics.Get().SnapshotsDelivered.WithLabelValues(string(sub.query.Kind)).Inc()
	select {
	case <-sub.snapshots:
	default:
	}
	select {
	case sub.snapshots <- snapshot:
	case <-sub.done:
	}
}

// runQuery executes the query's filter against the store, newest first.
func (h *Hub) runQuery(q Query) (Snapshot, error) {
	snapshot := Snapshot{Kind: q.Kind}

	switch q.Kind {
	case KindSupervisorHistory:
		err := h.db.
			Where("surveyor_id = ?", q.UID).
			Order("created_at DESC").
			Find(&snapshot.Projects).Error
		return snapshot, err
	case KindSupervisorAssigned:
		err := h.db.
			Where("assigned_to = ? AND status = ?", q.UID, models.StatusProject).
			Order("created_at DESC").
			Find(&snapshot.Projects).Error
		return snapshot, err
	case KindAdminInbox:
		err := h.db.
			Order("created_at DESC").
			Find(&snapshot.Projects).Error
		return snapshot, err
	case KindAdminRoster:
		err := h.db.
			Where("role = ?", models.RoleSupervisor).
			Order("created_at DESC").
			Find(&snapshot.Profiles).Error
		return snapshot, err
	default:
		return snapshot, ErrPermissionDenied
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	_, live := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if live {
		metrics.Get().ActiveSubscriptions.Dec()
	}
}
