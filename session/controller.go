// Package session owns the per-client application session: the signed-in
// identity and its derived role, the active project edit buffer, the
// unsaved-changes flag, and the set of live subscription handles. All
// session state mutates through the controller; nothing here is ambient
// global state.
package session

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/renowix/surveyor-api/calc"
	"github.com/renowix/surveyor-api/catalog"
	"github.com/renowix/surveyor-api/metrics"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/stream"
)

// Identity is the opaque identity handed over by the auth provider.
type Identity struct {
	UID   string
	Email string
	Name  string
}

// Route is the entry view the client should show after sign-in.
type Route string

const (
	RouteCompleteProfile Route = "complete_profile"
	RouteDashboard       Route = "dashboard"
	RouteAdmin           Route = "admin"
)

var (
	ErrNotSignedIn     = errors.New("no identity established")
	ErrNoActiveProject = errors.New("no active project in the edit buffer")
	ErrServiceNotFound = errors.New("service instance not found on the active project")
)

// MeasurementInput is the geometry captured for one room or run. Which
// fields apply depends on the owning service's measurement style.
type MeasurementInput struct {
	Name     string
	Height   float64
	Walls    []float64
	Sections []calc.CabinetSection
}

// Controller ties identity to role, loads and saves the active project, and
// gates navigation on unsaved-change state. The edit buffer is exclusively
// owned here: pushed snapshots update the list views, never the buffer.
type Controller struct {
	db         *gorm.DB
	hub        *stream.Hub
	adminEmail string

	identity *Identity
	role     string
	profile  *models.Profile

	active *models.Project
	dirty  bool

	history  *stream.Subscription
	assigned *stream.Subscription
	inbox    *stream.Subscription
	roster   *stream.Subscription
}

// NewController creates a session controller over the given store and hub.
func NewController(db *gorm.DB, hub *stream.Hub, adminEmail string) *Controller {
	return &Controller{db: db, hub: hub, adminEmail: adminEmail}
}

// SignIn establishes the session: derives the role from the identity's
// email, ensures the profile document exists, establishes the
// role-appropriate subscriptions and returns the entry route.
func (c *Controller) SignIn(ctx context.Context, identity Identity) (Route, error) {
	// A fresh sign-in always tears the previous session down first so no
	// stale subscription keeps delivering under the new identity.
	c.SignOut()

	role := models.RoleForEmail(identity.Email, c.adminEmail)

	profile, err := c.ensureProfile(ctx, identity, role)
	if err != nil {
		return "", err
	}

	c.identity = &identity
	c.role = role
	c.profile = profile

	if err := c.subscribe(); err != nil {
		c.SignOut()
		return "", err
	}

	switch {
	case role == models.RoleAdmin:
		return RouteAdmin, nil
	case profile.IsPending():
		return RouteCompleteProfile, nil
	default:
		return RouteDashboard, nil
	}
}

// ensureProfile creates the profile lazily for first-time supervisors and
// force-upserts the admin profile on every login so the access-control
// document always exists.
func (c *Controller) ensureProfile(ctx context.Context, identity Identity, role string) (*models.Profile, error) {
	db := c.db.WithContext(ctx)

	if role == models.RoleAdmin {
		profile := models.Profile{
			UID:   identity.UID,
			Email: identity.Email,
			Name:  identity.Name,
			Role:  models.RoleAdmin,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			UpdateAll: true,
		}).Create(&profile).Error; err != nil {
			return nil, err
		}
		c.hub.NotifyProfilesChanged(ctx)
		return &profile, nil
	}

	var profile models.Profile
	err := db.Where("uid = ?", identity.UID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// First authenticated session: create in the pending-name state
		profile = models.Profile{
			UID:   identity.UID,
			Email: identity.Email,
			Role:  models.RoleSupervisor,
		}
		if err := db.Create(&profile).Error; err != nil {
			return nil, err
		}
		c.hub.NotifyProfilesChanged(ctx)
		return &profile, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Controller) subscribe() error {
	if c.role == models.RoleAdmin {
		inbox, roster, err := c.hub.SubscribeAdmin(c.role)
		if err != nil {
			return err
		}
		c.inbox, c.roster = inbox, roster
		return nil
	}

	history, err := c.hub.Subscribe(c.role, stream.Query{Kind: stream.KindSupervisorHistory, UID: c.identity.UID})
	if err != nil {
		return err
	}
	assigned, err := c.hub.Subscribe(c.role, stream.Query{Kind: stream.KindSupervisorAssigned, UID: c.identity.UID})
	if err != nil {
		history.Cancel()
		return err
	}
	c.history, c.assigned = history, assigned
	return nil
}

// SignOut tears down every subscription and discards all in-memory state.
// Safe to call on an already-clean controller.
func (c *Controller) SignOut() {
	for _, sub := range []*stream.Subscription{c.history, c.assigned, c.inbox, c.roster} {
		if sub != nil {
			sub.Cancel()
		}
	}
	c.history, c.assigned, c.inbox, c.roster = nil, nil, nil, nil
	c.identity = nil
	c.role = ""
	c.profile = nil
	c.active = nil
	c.dirty = false
}

// RetryAdminSubscriptions re-establishes both admin subscriptions as a unit
// after a delivery failure.
func (c *Controller) RetryAdminSubscriptions() error {
	if c.role != models.RoleAdmin {
		return stream.ErrPermissionDenied
	}
	if c.inbox != nil {
		c.inbox.Cancel()
	}
	if c.roster != nil {
		c.roster.Cancel()
	}
	inbox, roster, err := c.hub.SubscribeAdmin(c.role)
	if err != nil {
		return err
	}
	c.inbox, c.roster = inbox, roster
	return nil
}

// Role returns the session role, empty when signed out.
func (c *Controller) Role() string { return c.role }

// Profile returns the session profile, nil when signed out.
func (c *Controller) Profile() *models.Profile { return c.profile }

// Dirty reports whether the active project has unsaved edits.
func (c *Controller) Dirty() bool { return c.dirty }

// ActiveProject returns the edit buffer, nil when none is open.
func (c *Controller) ActiveProject() *models.Project { return c.active }

// History returns the supervisor's authored-projects subscription.
func (c *Controller) History() *stream.Subscription { return c.history }

// Assigned returns the supervisor's assigned-tasks subscription.
func (c *Controller) Assigned() *stream.Subscription { return c.assigned }

// Inbox returns the admin's all-projects subscription.
func (c *Controller) Inbox() *stream.Subscription { return c.inbox }

// Roster returns the admin's supervisor-roster subscription.
func (c *Controller) Roster() *stream.Subscription { return c.roster }

// NewProject opens a fresh draft in the edit buffer. A draft has no ID
// until its first save assigns one.
func (c *Controller) NewProject(date string) error {
	if c.identity == nil {
		return ErrNotSignedIn
	}
	name := c.identity.Name
	if c.profile != nil && c.profile.Name != "" {
		name = c.profile.Name
	}
	c.active = &models.Project{
		Date:         date,
		Services:     models.ServiceList{},
		SurveyorID:   c.identity.UID,
		SurveyorName: name,
		Status:       models.StatusQuotation,
	}
	c.dirty = false
	return nil
}

// OpenProject loads a persisted project into the edit buffer.
func (c *Controller) OpenProject(ctx context.Context, id uint) error {
	if c.identity == nil {
		return ErrNotSignedIn
	}
	var project models.Project
	if err := c.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return err
	}
	c.active = &project
	c.dirty = false
	return nil
}

// guardEdit is the per-operation write guard. It re-checks status every
// call; the result is never cached across operations.
func (c *Controller) guardEdit() error {
	if c.identity == nil {
		return ErrNotSignedIn
	}
	if c.active == nil {
		return ErrNoActiveProject
	}
	if err := c.active.EnsureEditable(c.identity.UID); err != nil {
		if errors.Is(err, models.ErrProjectLocked) {
			metrics.Get().LockedWriteRejects.Inc()
		}
		return err
	}
	return nil
}

// SetClient updates the client details on the active project.
func (c *Controller) SetClient(client models.Client) error {
	if err := c.guardEdit(); err != nil {
		return err
	}
	c.active.Client = client
	c.dirty = true
	return nil
}

// SetTerms updates the terms text on the active project.
func (c *Controller) SetTerms(terms string) error {
	if err := c.guardEdit(); err != nil {
		return err
	}
	c.active.Terms = terms
	c.dirty = true
	return nil
}

// AddService seeds a service instance from the catalog and appends it to
// the active project. A catalog miss adds nothing and returns nil with no
// error: it is unreachable through normal flows, so it is logged, not
// surfaced.
func (c *Controller) AddService(categoryID, typeID, overrideName, overrideDesc string) (*models.ServiceInstance, error) {
	if err := c.guardEdit(); err != nil {
		return nil, err
	}
	svc := catalog.NewServiceInstance(categoryID, typeID, overrideName, overrideDesc)
	if svc == nil {
		log.Printf("catalog miss for category %q type %q, no service added", categoryID, typeID)
		return nil, nil
	}
	c.active.Services = append(c.active.Services, *svc)
	c.dirty = true
	return &c.active.Services[len(c.active.Services)-1], nil
}

// RemoveService deletes a service instance from the active project.
func (c *Controller) RemoveService(instanceID string) error {
	if err := c.guardEdit(); err != nil {
		return err
	}
	for i := range c.active.Services {
		if c.active.Services[i].InstanceID == instanceID {
			c.active.Services = append(c.active.Services[:i], c.active.Services[i+1:]...)
			c.dirty = true
			return nil
		}
	}
	return ErrServiceNotFound
}

// SetServiceRate sets the manual rate on a service (custom work starts at
// rate 0). Existing item cost snapshots are not recomputed.
func (c *Controller) SetServiceRate(instanceID string, rate float64) error {
	if err := c.guardEdit(); err != nil {
		return err
	}
	svc := c.findService(instanceID)
	if svc == nil {
		return ErrServiceNotFound
	}
	svc.Rate = rate
	c.dirty = true
	return nil
}

// SaveMeasurement computes quantity and cost for the given geometry and
// appends the item to the service. Cost is snapshotted here, at save time.
func (c *Controller) SaveMeasurement(instanceID string, input MeasurementInput) (*models.MeasurementItem, error) {
	if err := c.guardEdit(); err != nil {
		return nil, err
	}
	svc := c.findService(instanceID)
	if svc == nil {
		return nil, ErrServiceNotFound
	}

	item := models.MeasurementItem{
		ID:   uuid.NewString(),
		Name: input.Name,
		Rate: svc.Rate,
	}

	cat, _ := catalog.LookupCategory(svc.CategoryID)
	switch cat.Measurement {
	case catalog.MeasureWalls:
		height := input.Height
		item.Height = &height
		item.Walls = input.Walls
		item.NetArea = calc.WallArea(input.Walls, input.Height)
	case catalog.MeasureSections:
		item.CabinetSections = input.Sections
		item.NetArea = calc.SectionArea(input.Sections)
	default:
		item.NetArea = calc.FlatUnitQuantity
	}
	item.Cost = calc.Cost(item.NetArea, svc.Rate)

	svc.Items = append(svc.Items, item)
	c.dirty = true
	return &svc.Items[len(svc.Items)-1], nil
}

// RemoveMeasurement deletes one measured item from a service.
func (c *Controller) RemoveMeasurement(instanceID, itemID string) error {
	if err := c.guardEdit(); err != nil {
		return err
	}
	svc := c.findService(instanceID)
	if svc == nil {
		return ErrServiceNotFound
	}
	for i := range svc.Items {
		if svc.Items[i].ID == itemID {
			svc.Items = append(svc.Items[:i], svc.Items[i+1:]...)
			c.dirty = true
			return nil
		}
	}
	return ErrServiceNotFound
}

func (c *Controller) findService(instanceID string) *models.ServiceInstance {
	for i := range c.active.Services {
		if c.active.Services[i].InstanceID == instanceID {
			return &c.active.Services[i]
		}
	}
	return nil
}

// Save persists the edit buffer. A draft gets a store-assigned ID; an
// existing project is overwritten whole, last write wins. The lock guard is
// re-checked against the freshly loaded row, since an admin conversion can
// land between local edits and this save.
func (c *Controller) Save(ctx context.Context) error {
	if c.identity == nil {
		return ErrNotSignedIn
	}
	if c.active == nil {
		return ErrNoActiveProject
	}

	db := c.db.WithContext(ctx)

	if c.active.ID == 0 {
		if err := c.active.EnsureEditable(c.identity.UID); err != nil {
			return err
		}
		if err := db.Create(c.active).Error; err != nil {
			return err
		}
		metrics.Get().ProjectSaves.WithLabelValues("create").Inc()
	} else {
		var current models.Project
		if err := db.First(&current, c.active.ID).Error; err != nil {
			return err
		}
		if err := current.EnsureEditable(c.identity.UID); err != nil {
			if errors.Is(err, models.ErrProjectLocked) {
				metrics.Get().LockedWriteRejects.Inc()
			}
			return err
		}
		if err := db.Save(c.active).Error; err != nil {
			return err
		}
		metrics.Get().ProjectSaves.WithLabelValues("update").Inc()
	}

	c.dirty = false
	c.hub.NotifyProjectsChanged(ctx)
	return nil
}

// Delete removes the active project from the store. Only the owning
// surveyor may delete, and only while the project is unlocked.
func (c *Controller) Delete(ctx context.Context) error {
	if c.identity == nil {
		return ErrNotSignedIn
	}
	if c.active == nil || c.active.ID == 0 {
		return ErrNoActiveProject
	}

	db := c.db.WithContext(ctx)

	var current models.Project
	if err := db.First(&current, c.active.ID).Error; err != nil {
		return err
	}
	if err := current.EnsureEditable(c.identity.UID); err != nil {
		if errors.Is(err, models.ErrProjectLocked) {
			metrics.Get().LockedWriteRejects.Inc()
		}
		return err
	}
	if err := db.Delete(&models.Project{}, c.active.ID).Error; err != nil {
		return err
	}
	metrics.Get().ProjectSaves.WithLabelValues("delete").Inc()

	c.active = nil
	c.dirty = false
	c.hub.NotifyProjectsChanged(ctx)
	return nil
}

// Discard drops unsaved edits and closes the buffer.
func (c *Controller) Discard() {
	c.active = nil
	c.dirty = false
}

// Navigate gates leaving an edit view. With unsaved changes the caller's
// confirm decision is required; confirming discards the edits. Navigation
// never saves implicitly.
func (c *Controller) Navigate(confirm func() bool) bool {
	if !c.dirty {
		return true
	}
	if confirm == nil || !confirm() {
		return false
	}
	c.Discard()
	return true
}
