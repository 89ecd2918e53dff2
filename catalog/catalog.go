// Package catalog holds the fixed service catalog: the externally supplied
// mapping of category and type IDs to default name, rate, unit and
// description used to seed new service instances.
package catalog

import (
	"github.com/google/uuid"

	"github.com/renowix/surveyor-api/models"
)

// Measurement styles. The style decides which geometry a service's
// measurement items carry.
const (
	MeasureWalls    = "walls"    // wall widths + shared height (perimeter-style)
	MeasureSections = "sections" // rectangular sections with a quantity multiplier
	MeasureUnit     = "unit"     // flat unitized item, no geometry
)

// Well-known category IDs
const (
	CategoryPainting  = "painting"
	CategoryCabinetry = "cabinetry"
	CategoryCustom    = "custom"
)

// ServiceType is one selectable type within a category.
type ServiceType struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Rate float64 `json:"rate"`
	Desc string  `json:"desc"`
}

// Category groups service types that share a unit and measurement style.
type Category struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Unit        string        `json:"unit"`
	Measurement string        `json:"measurement"`
	Types       []ServiceType `json:"types"`
}

// catalog is the fixed catalog. Rates are defaults; the custom category's
// single type carries rate 0 pending manual entry.
var catalog = []Category{
	{
		ID:          CategoryPainting,
		Name:        "Painting",
		Unit:        "sqft",
		Measurement: MeasureWalls,
		Types: []ServiceType{
			{ID: "fresh_paint", Name: "Fresh Painting", Rate: 20, Desc: "Two coats of putty, one coat primer, two coats emulsion"},
			{ID: "repaint", Name: "Repainting", Rate: 14, Desc: "Surface preparation and two coats emulsion"},
			{ID: "texture_paint", Name: "Texture Painting", Rate: 90, Desc: "Designer texture finish on feature wall"},
		},
	},
	{
		ID:          CategoryCabinetry,
		Name:        "Cabinetry & Furniture",
		Unit:        "sqft",
		Measurement: MeasureSections,
		Types: []ServiceType{
			{ID: "modular_kitchen", Name: "Modular Kitchen", Rate: 1400, Desc: "BWR ply carcass with laminate shutters"},
			{ID: "wardrobe", Name: "Wardrobe", Rate: 1250, Desc: "Sliding wardrobe with laminate finish"},
			{ID: "tv_unit", Name: "TV Unit", Rate: 1100, Desc: "Wall-mounted TV unit with storage"},
		},
	},
	{
		ID:          CategoryCustom,
		Name:        "Custom Work",
		Unit:        "unit",
		Measurement: MeasureUnit,
		Types: []ServiceType{
			{ID: "custom_item", Name: "Custom Item", Rate: 0, Desc: ""},
		},
	},
}

// Categories returns the full catalog for the intake screens.
func Categories() []Category {
	return catalog
}

// LookupCategory finds a category by ID. The second return value is false on
// a miss; callers treat a miss as a no-op rather than an error.
func LookupCategory(categoryID string) (Category, bool) {
	for _, c := range catalog {
		if c.ID == categoryID {
			return c, true
		}
	}
	return Category{}, false
}

// Lookup finds a category/type pair. A miss on either ID returns false and
// must not crash the caller.
func Lookup(categoryID, typeID string) (Category, ServiceType, bool) {
	cat, ok := LookupCategory(categoryID)
	if !ok {
		return Category{}, ServiceType{}, false
	}
	for _, t := range cat.Types {
		if t.ID == typeID {
			return cat, t, true
		}
	}
	return Category{}, ServiceType{}, false
}

// NewServiceInstance seeds a service instance from the catalog. For the
// custom category the caller-supplied name and description override the
// catalog defaults. Returns nil on a catalog miss: the caller simply gets no
// new instance.
func NewServiceInstance(categoryID, typeID, overrideName, overrideDesc string) *models.ServiceInstance {
	cat, typ, ok := Lookup(categoryID, typeID)
	if !ok {
		return nil
	}

	name := typ.Name
	desc := typ.Desc
	if cat.ID == CategoryCustom {
		if overrideName != "" {
			name = overrideName
		}
		if overrideDesc != "" {
			desc = overrideDesc
		}
	}

	return &models.ServiceInstance{
		InstanceID: uuid.NewString(),
		CategoryID: cat.ID,
		TypeID:     typ.ID,
		Name:       name,
		Desc:       desc,
		Unit:       cat.Unit,
		Rate:       typ.Rate,
		Items:      []models.MeasurementItem{},
	}
}
