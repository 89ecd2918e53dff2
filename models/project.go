package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/renowix/surveyor-api/calc"
)

// Project status values
const (
	StatusQuotation = "quotation" // editable by the owning surveyor
	StatusProject   = "project"   // locked: content frozen, assigned to a supervisor
)

// Lifecycle guard errors. These are local rejections and are never sent to
// the store.
var (
	ErrProjectLocked = errors.New("project is locked and its content can no longer be modified")
	ErrNotOwner      = errors.New("project is owned by another surveyor")
	ErrNotQuotation  = errors.New("operation requires a quotation-status project")
)

// Client holds the customer details captured at intake. Free text; only a
// non-empty name is required to proceed.
type Client struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// MeasurementItem is one measured room or run within a service. Cost is a
// stored snapshot taken at save time (cost == netArea * rate); it is never
// recomputed from the geometry afterward.
type MeasurementItem struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"` // room label, e.g. "Master Bedroom"
	NetArea         float64               `json:"net_area"`
	Rate            float64               `json:"rate"`
	Cost            float64               `json:"cost"`
	Height          *float64              `json:"height,omitempty"`
	Walls           []float64             `json:"walls,omitempty"`
	CabinetSections []calc.CabinetSection `json:"cabinet_sections,omitempty"`
}

// ServiceInstance is one service added to a project, seeded from the catalog.
// InstanceID is generated at creation and is the stable key for the lifetime
// of the in-memory project; it is never reused.
type ServiceInstance struct {
	InstanceID string            `json:"instance_id"`
	CategoryID string            `json:"category_id"`
	TypeID     string            `json:"type_id"`
	Name       string            `json:"name"`
	Desc       string            `json:"desc"`
	Unit       string            `json:"unit"`
	Rate       float64           `json:"rate"`
	Items      []MeasurementItem `json:"items"`
}

// NetArea returns the total measured quantity across the service's items.
func (s *ServiceInstance) NetArea() float64 {
	total := 0.0
	for _, item := range s.Items {
		total += item.NetArea
	}
	return total
}

// TotalCost returns the total cost snapshot across the service's items.
func (s *ServiceInstance) TotalCost() float64 {
	total := 0.0
	for _, item := range s.Items {
		total += item.Cost
	}
	return total
}

// ServiceList is the project's embedded service document. It is stored as a
// single JSON column: the services array is a nested document owned by its
// project, not a relational child table.
type ServiceList []ServiceInstance

// Value implements driver.Valuer so GORM can persist the list as JSON.
func (l ServiceList) Value() (driver.Value, error) {
	if l == nil {
		l = ServiceList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for reading the JSON column back.
func (l *ServiceList) Scan(value interface{}) error {
	if value == nil {
		*l = ServiceList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ServiceList", value)
	}
	return json.Unmarshal(data, l)
}

// Project represents a survey record: an editable quotation authored by a
// surveyor, or a locked project assigned to a supervisor.
type Project struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Date         string         `json:"date"`
	Client       Client         `gorm:"embedded;embeddedPrefix:client_" json:"client"`
	Services     ServiceList    `gorm:"type:jsonb" json:"services"`
	Terms        string         `gorm:"type:text" json:"terms"`
	SurveyorID   string         `gorm:"not null;index" json:"surveyor_id"`
	SurveyorName string         `json:"surveyor_name"`
	Status       string         `gorm:"not null;default:'quotation';index" json:"status"`
	AssignedTo   *string        `gorm:"index" json:"assigned_to,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Project model
func (Project) TableName() string {
	return "projects"
}

// IsLocked reports whether the project content is frozen. A locked project
// is terminal: no transition back to quotation is exposed.
func (p *Project) IsLocked() bool {
	return p.Status == StatusProject
}

// EnsureEditable is the write guard for content mutations. It must be
// re-evaluated against a freshly loaded row on every operation, never
// cached, because status can change underneath via a concurrent conversion.
func (p *Project) EnsureEditable(surveyorID string) error {
	if p.IsLocked() {
		return ErrProjectLocked
	}
	if p.SurveyorID != surveyorID {
		return ErrNotOwner
	}
	return nil
}

// TotalCost returns the sum of all service cost snapshots.
func (p *Project) TotalCost() float64 {
	total := 0.0
	for i := range p.Services {
		total += p.Services[i].TotalCost()
	}
	return total
}

// AssignmentUpdate returns the partial update written by the admin-only
// convert & assign operation. Only status, assignee and the update timestamp
// are ever touched; content columns stay byte-identical.
func AssignmentUpdate(supervisorUID string) map[string]interface{} {
	return map[string]interface{}{
		"status":      StatusProject,
		"assigned_to": supervisorUID,
		"updated_at":  time.Now(),
	}
}
