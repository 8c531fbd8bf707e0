package domain

type ResourceType string

const (
	ResourceTypeAmenity ResourceType = "AMENITY"
	ResourceTypeVenue   ResourceType = "VENUE"
)

func (t ResourceType) Valid() bool {
	return t == ResourceTypeAmenity || t == ResourceTypeVenue
}

// Resource is a bookable amenity or venue. Reservations only reference it by ID
// and the catalog is read as a snapshot inside the transaction that needs it.
type Resource struct {
	ID              int32        `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Type            ResourceType `json:"type" yaml:"type"`
	Description     string       `json:"description" yaml:"description"`
	Location        string       `json:"location" yaml:"location"`
	Capacity        int32        `json:"capacity" yaml:"capacity"`
	HourlyRateCents int64        `json:"hourly_rate_cents" yaml:"hourly_rate_cents"`
	DailyRateCents  int64        `json:"daily_rate_cents" yaml:"daily_rate_cents"`
	Active          bool         `json:"active" yaml:"active"`
}

type ResourceFilter struct {
	Type       ResourceType
	ActiveOnly bool
}

func (f ResourceFilter) Matches(r *Resource) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.ActiveOnly && !r.Active {
		return false
	}
	return true
}
