package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/renowix/surveyor-api/models"
)

func setupStreamTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(&models.Profile{}, &models.Project{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// fakeNotifier loops published topics straight back to the listener,
// standing in for the Redis pub/sub round trip.
type fakeNotifier struct {
	topics chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{topics: make(chan string, 16)}
}

func (f *fakeNotifier) Publish(ctx context.Context, topic string) error {
	f.topics <- topic
	return nil
}

func (f *fakeNotifier) Listen(ctx context.Context) (<-chan string, func(), error) {
	return f.topics, func() {}, nil
}

func receiveSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		return snap
	case err := <-sub.Errors():
		t.Fatalf("expected snapshot, got error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func receiveError(t *testing.T, sub *Subscription) error {
	t.Helper()
	select {
	case err := <-sub.Errors():
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription error")
	}
	return nil
}

func seedProject(t *testing.T, db *gorm.DB, surveyorID, status string, assignedTo *string, createdAt time.Time) models.Project {
	t.Helper()
	project := models.Project{
		Date:       "2025-03-14",
		Client:     models.Client{Name: "Sameer", Address: "Pune"},
		Services:   models.ServiceList{},
		SurveyorID: surveyorID,
		Status:     status,
		AssignedTo: assignedTo,
		CreatedAt:  createdAt,
	}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	return project
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	now := time.Now()
	seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, now.Add(-time.Hour))
	newer := seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, now)
	seedProject(t, db, "auth0|other", models.StatusQuotation, nil, now)

	sub, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindSupervisorHistory, UID: "auth0|s1"})
	assert.NoError(t, err)
	defer sub.Cancel()

	snap := receiveSnapshot(t, sub)
	assert.Equal(t, KindSupervisorHistory, snap.Kind)
	assert.Len(t, snap.Projects, 2)
	// Newest first
	assert.Equal(t, newer.ID, snap.Projects[0].ID)
	for _, p := range snap.Projects {
		assert.Equal(t, "auth0|s1", p.SurveyorID)
	}
}

func TestSupervisorAssignedFiltersByStatus(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	uid := "auth0|supervisorX"
	now := time.Now()
	locked := seedProject(t, db, "auth0|s1", models.StatusProject, &uid, now)
	// Assigned but still a quotation must never appear
	seedProject(t, db, "auth0|s1", models.StatusQuotation, &uid, now)
	seedProject(t, db, "auth0|s1", models.StatusProject, nil, now)

	sub, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindSupervisorAssigned, UID: uid})
	assert.NoError(t, err)
	defer sub.Cancel()

	snap := receiveSnapshot(t, sub)
	assert.Len(t, snap.Projects, 1)
	assert.Equal(t, locked.ID, snap.Projects[0].ID)
	assert.Equal(t, models.StatusProject, snap.Projects[0].Status)
}

func TestHistoryKeepsLockedProjects(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	uid := "auth0|supervisorX"
	// The author sees a project in history even after it was locked and
	// assigned away: history is scoped by authorship, not status.
	seedProject(t, db, "auth0|s1", models.StatusProject, &uid, time.Now())

	history, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindSupervisorHistory, UID: "auth0|s1"})
	assert.NoError(t, err)
	defer history.Cancel()

	snap := receiveSnapshot(t, history)
	assert.Len(t, snap.Projects, 1)
	assert.Equal(t, models.StatusProject, snap.Projects[0].Status)
}

func TestAdminSubscriptionsRequireAdminRole(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	_, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindAdminInbox})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = hub.Subscribe(models.RoleSupervisor, Query{Kind: KindAdminRoster})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	inbox, roster, err := hub.SubscribeAdmin(models.RoleAdmin)
	assert.NoError(t, err)
	inbox.Cancel()
	roster.Cancel()

	_, _, err = hub.SubscribeAdmin(models.RoleSupervisor)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAdminRosterListsSupervisorsOnly(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	db.Create(&models.Profile{UID: "auth0|admin", Email: "admin@renowix.test", Name: "Admin", Role: models.RoleAdmin})
	db.Create(&models.Profile{UID: "auth0|sup1", Email: "sup1@renowix.test", Name: "Supervisor One", Role: models.RoleSupervisor})
	db.Create(&models.Profile{UID: "auth0|sup2", Email: "sup2@renowix.test", Name: "Supervisor Two", Role: models.RoleSupervisor})

	_, roster, err := hub.SubscribeAdmin(models.RoleAdmin)
	assert.NoError(t, err)
	defer roster.Cancel()

	snap := receiveSnapshot(t, roster)
	assert.Len(t, snap.Profiles, 2)
	for _, p := range snap.Profiles {
		assert.Equal(t, models.RoleSupervisor, p.Role)
	}
}

func TestChangeNotificationRefreshesSnapshot(t *testing.T) {
	db := setupStreamTestDB(t)
	notifier := newFakeNotifier()
	hub := NewHub(db, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = hub.Run(ctx)
	}()

	sub, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindSupervisorHistory, UID: "auth0|s1"})
	assert.NoError(t, err)
	defer sub.Cancel()

	snap := receiveSnapshot(t, sub)
	assert.Empty(t, snap.Projects)

	seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, time.Now())
	hub.NotifyProjectsChanged(ctx)

	snap = receiveSnapshot(t, sub)
	assert.Len(t, snap.Projects, 1)
}

func TestSubscriptionFailureLeavesSiblingAlive(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	inbox, roster, err := hub.SubscribeAdmin(models.RoleAdmin)
	assert.NoError(t, err)
	defer inbox.Cancel()
	defer roster.Cancel()

	receiveSnapshot(t, inbox)
	receiveSnapshot(t, roster)

	// Break the profiles collection only
	assert.NoError(t, db.Migrator().DropTable(&models.Profile{}))

	hub.NotifyProfilesChanged(context.Background())
	assert.Error(t, receiveError(t, roster))

	// The inbox subscription keeps delivering
	seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, time.Now())
	hub.NotifyProjectsChanged(context.Background())
	snap := receiveSnapshot(t, inbox)
	assert.Len(t, snap.Projects, 1)
}

func TestCancelStopsDelivery(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	sub, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindSupervisorHistory, UID: "auth0|s1"})
	assert.NoError(t, err)
	receiveSnapshot(t, sub)

	sub.Cancel()
	sub.Cancel() // idempotent

	seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, time.Now())
	hub.NotifyProjectsChanged(context.Background())

	select {
	case snap, ok := <-sub.Snapshots():
		if ok {
			t.Fatalf("received snapshot after cancel: %+v", snap)
		}
	case <-time.After(100 * time.Millisecond):
		// No delivery after teardown
	}
}

func TestSnapshotIsFullReplacement(t *testing.T) {
	db := setupStreamTestDB(t)
	hub := NewHub(db, nil)

	first := seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, time.Now().Add(-time.Minute))

	sub, err := hub.Subscribe(models.RoleSupervisor, Query{Kind: KindSupervisorHistory, UID: "auth0|s1"})
	assert.NoError(t, err)
	defer sub.Cancel()
	receiveSnapshot(t, sub)

	// Two rapid changes: a slow consumer sees only the latest full view
	seedProject(t, db, "auth0|s1", models.StatusQuotation, nil, time.Now())
	hub.NotifyProjectsChanged(context.Background())
	assert.NoError(t, db.Delete(&models.Project{}, first.ID).Error)
	hub.NotifyProjectsChanged(context.Background())

	snap := receiveSnapshot(t, sub)
	assert.Len(t, snap.Projects, 1)
	assert.NotEqual(t, first.ID, snap.Projects[0].ID)
}
