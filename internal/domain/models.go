package domain

import "time"

// EnergyReading is one building's monthly consumption. (BuildingName, Year, Month) is unique.
type EnergyReading struct {
	ID           int64     `db:"id" json:"id"`
	BuildingName string    `db:"building_name" json:"building_name" validate:"required,max=100"`
	Year         int       `db:"year" json:"year" validate:"required,gte=2000,lte=2100"`
	Month        int       `db:"month" json:"month" validate:"required,gte=1,lte=12"`
	Electricity  float64   `db:"electricity" json:"electricity" validate:"gte=0"`
	Gas          float64   `db:"gas" json:"gas" validate:"gte=0"`
	Water        float64   `db:"water" json:"water" validate:"gte=0"`
	Revision     int       `db:"revision" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SolarReading is one building's monthly photovoltaic figures.
type SolarReading struct {
	ID              int64     `db:"id" json:"id"`
	BuildingName    string    `db:"building_name" json:"building_name" validate:"required,max=100"`
	Year            int       `db:"year" json:"year" validate:"required,gte=2000,lte=2100"`
	Month           int       `db:"month" json:"month" validate:"required,gte=1,lte=12"`
	Generation      float64   `db:"generation" json:"generation" validate:"gte=0"`
	Capacity        float64   `db:"capacity" json:"capacity" validate:"gte=0"`
	SelfConsumption float64   `db:"self_consumption" json:"self_consumption" validate:"gte=0"`
	Trade           float64   `db:"trade" json:"trade" validate:"gte=0"`
	Revision        int       `db:"revision" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// UpsertAction tells whether a natural-key write created or updated the row.
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
)

// ActionForRevision maps the post-write revision counter to the action taken.
func ActionForRevision(rev int) UpsertAction {
	if rev <= 1 {
		return ActionCreated
	}
	return ActionUpdated
}

type CollectionStatus string

const (
	CollectionSuccess CollectionStatus = "success"
	CollectionError   CollectionStatus = "error"
)

// CollectionLogEntry is the append-only audit record of one collector run.
type CollectionLogEntry struct {
	ID           int64            `db:"id" json:"id"`
	CollectedAt  time.Time        `db:"collected_at" json:"collected_at"`
	Status       CollectionStatus `db:"status" json:"status"`
	DataCount    int              `db:"data_count" json:"data_count"`
	Details      *string          `db:"details" json:"details,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
}

// EnergyTotals sums a year's readings across all buildings.
type EnergyTotals struct {
	Year             int     `db:"year" json:"year"`
	ElectricityTotal float64 `db:"electricity_total" json:"electricity_total"`
	GasTotal         float64 `db:"gas_total" json:"gas_total"`
	WaterTotal       float64 `db:"water_total" json:"water_total"`
}

// BuildingReading is one building's figures as reported by a telemetry source.
type BuildingReading struct {
	Name        string  `json:"name" validate:"required"`
	Electricity float64 `json:"electricity" validate:"gte=0"`
	Gas         float64 `json:"gas" validate:"gte=0"`
	Water       float64 `json:"water" validate:"gte=0"`
}
