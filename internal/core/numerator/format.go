package numerator

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Key identifies one independent counter.
type Key struct {
	DocumentType DocumentType
	WarehouseKey string // warehouse code or GeneralWarehouseCode
	YearMonth    string // "YYYY-MM"
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DocumentType, k.WarehouseKey, k.YearMonth)
}

// YearMonth renders the counter period of t.
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// Format renders an allocated sequence value. It is a pure function.
func Format(prefix string, seq int64, warehouseCode string, period time.Time) string {
	if warehouseCode == "" {
		warehouseCode = GeneralWarehouseCode
	}
	return fmt.Sprintf("%s-%03d/%s/%s", prefix, seq, warehouseCode, period.Format("01-2006"))
}

// Number is a parsed document number.
type Number struct {
	Prefix        string
	Sequence      int64
	WarehouseCode string
	Year          int
	Month         time.Month
}

// IsGeneral reports whether the number belongs to the warehouse-less namespace.
func (n Number) IsGeneral() bool {
	return n.WarehouseCode == GeneralWarehouseCode
}

var numberPattern = regexp.MustCompile(`^([A-Z]{2,3})-(\d{3,})/([A-Z]{3,4})/(\d{2})-(\d{4})$`)

// Parse splits a formatted number back into its parts.
func Parse(s string) (Number, error) {
	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return Number{}, fmt.Errorf("malformed document number %q", s)
	}
	seq, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Number{}, fmt.Errorf("document number %q: %w", s, err)
	}
	month, _ := strconv.Atoi(m[4])
	year, _ := strconv.Atoi(m[5])
	if month < 1 || month > 12 {
		return Number{}, fmt.Errorf("document number %q: month out of range", s)
	}
	return Number{
		Prefix:        m[1],
		Sequence:      seq,
		WarehouseCode: m[3],
		Year:          year,
		Month:         time.Month(month),
	}, nil
}
