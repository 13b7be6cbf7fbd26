package receipt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/tipenter/internal/money"
)

// Order is a sort direction.
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// ParseOrder maps "desc"/"descending" to Descending and anything else to
// Ascending.
func ParseOrder(s string) Order {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}

// sortable fields
const (
	FieldFileName     = "file_name"
	FieldDate         = "date"
	FieldTime         = "time"
	FieldCustomerName = "customer_name"
	FieldCheckNumber  = "check_number"
	FieldAmount       = "amount"
	FieldTip          = "tip"
	FieldTotal        = "total"
	FieldSigned       = "signed"
	FieldConfidence   = "confidence"
)

// key is a sort key: ok=false keys sort after every ok key regardless of
// direction.
type key struct {
	num float64
	str string
	ok  bool
}

type keyFunc func(*Record) key

func moneyKey(get func(*Record) string) keyFunc {
	return func(r *Record) key {
		f, ok := money.ParseAmount(get(r)).Float64()
		return key{num: f, ok: ok}
	}
}

func textKey(get func(*Record) string) keyFunc {
	return func(r *Record) key {
		s := strings.ToLower(strings.TrimSpace(get(r)))
		return key{str: s, ok: s != ""}
	}
}

var keyFuncs = map[string]keyFunc{
	FieldAmount:       moneyKey(func(r *Record) string { return r.Amount }),
	FieldTip:          moneyKey(func(r *Record) string { return r.Tip }),
	FieldTotal:        moneyKey(func(r *Record) string { return r.Total }),
	FieldFileName:     textKey(func(r *Record) string { return r.FileName }),
	FieldDate:         textKey(func(r *Record) string { return r.Date }),
	FieldCustomerName: textKey(func(r *Record) string { return r.CustomerName }),
	FieldCheckNumber:  textKey(func(r *Record) string { return r.CheckNumber }),
	FieldTime: func(r *Record) key {
		m, ok := MinutesSinceMidnight(r.Time)
		return key{num: float64(m), ok: ok}
	},
	FieldSigned: func(r *Record) key {
		if r.Signed {
			return key{num: 1, ok: true}
		}
		return key{num: 0, ok: true}
	},
	FieldConfidence: func(r *Record) key {
		return key{num: r.Confidence, ok: true}
	},
}

// Sort orders records in place by field. Money fields compare numerically,
// time compares as minutes since midnight, text compares case-insensitively.
// Values that cannot be read sort last. The sort is stable.
func Sort(records []*Record, field string, order Order) error {
	kf, ok := keyFuncs[field]
	if !ok {
		return fmt.Errorf("Sort: unknown field %q", field)
	}

	keys := make(map[*Record]key, len(records))
	for _, r := range records {
		keys[r] = kf(r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := keys[records[i]], keys[records[j]]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		c := compareKeys(a, b)
		if order == Descending {
			return c > 0
		}
		return c < 0
	})
	return nil
}

func compareKeys(a, b key) int {
	if a.str != "" || b.str != "" {
		return strings.Compare(a.str, b.str)
	}
	switch {
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	default:
		return 0
	}
}

// MinutesSinceMidnight parses "HH:MM", "H:MM", "HH:MM:SS" and the same with
// an AM/PM suffix.
func MinutesSinceMidnight(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	meridiem := ""
	for _, suffix := range []string{"AM", "PM", "A.M.", "P.M."} {
		if strings.HasSuffix(s, suffix) {
			meridiem = suffix[:1]
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}

	switch meridiem {
	case "A":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
	case "P":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h != 12 {
			h += 12
		}
	default:
		if h < 0 || h > 23 {
			return 0, false
		}
	}
	return h*60 + m, true
}
