package repository

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// RecentWindow and RecentFallback define the "recent rows" used by dashboards:
// rows touched within the window, else the latest RecentFallback rows.
const (
	RecentWindow   = time.Hour
	RecentFallback = 10
)

type Repos struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Repos {
	return &Repos{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of r that stamps rows using now.
func (r *Repos) WithClock(now func() time.Time) *Repos {
	return &Repos{db: r.db, now: func() time.Time { return now().UTC() }}
}

func (r *Repos) DB() *sqlx.DB { return r.db }

// ReadingFilter narrows list queries; zero values match everything.
type ReadingFilter struct {
	Year     int
	Month    int
	Building string
}

func (f ReadingFilter) where() (string, []interface{}) {
	clause := " WHERE 1=1"
	var args []interface{}
	if f.Year != 0 {
		clause += " AND year = ?"
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		clause += " AND month = ?"
		args = append(args, f.Month)
	}
	if f.Building != "" {
		clause += " AND building_name = ?"
		args = append(args, f.Building)
	}
	return clause, args
}
