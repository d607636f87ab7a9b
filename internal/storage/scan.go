package storage

import (
	"database/sql"
	"fmt"
	"time"

	"gastos/internal/core"
)

// dbDate scans DATE (time.Time) and ISO TEXT columns alike.
type dbDate struct {
	core.Date
}

func (d *dbDate) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Date = core.Date{}
	case time.Time:
		d.Date = core.DateOf(v)
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
	return nil
}

func (d *dbDate) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Date = core.Date{Time: t}
	return nil
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func idPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func unixNow() int64 {
	return time.Now().Unix()
}
