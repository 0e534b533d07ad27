package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a time of day. It is stored as a SQL date
// and serialised as "YYYY-MM-DD".
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value == "" {
		*d = Date{}
		return nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return fmt.Errorf("invalid date %q", value)
	}
	*d = NewDate(parsed)
	return nil
}

func (Date) GormDataType() string {
	return "date"
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = NewDate(v)
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
	return nil
}

func (d *Date) scanString(value string) error {
	if len(value) < len(dateLayout) {
		return fmt.Errorf("invalid date %q", value)
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value)[:len(dateLayout)])
	if err != nil {
		return err
	}
	*d = NewDate(parsed)
	return nil
}
