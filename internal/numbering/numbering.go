// Package numbering formats human-readable document numbers: monthly invoice
// numbers such as INV-202610-007 and global purchase order numbers such as
// PO0042. The integer behind each number comes from the store's counter.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Scope struct {
	name    string
	prefix  string
	monthly bool
	width   int
}

func Invoice(prefix string) Scope {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "INV"
	}
	return Scope{name: "invoice", prefix: prefix, monthly: true, width: 3}
}

func PurchaseOrder() Scope {
	return Scope{name: "purchase_order", prefix: "PO", width: 4}
}

func (s Scope) Name() string {
	return s.name
}

// Key names the counter backing this scope at the given time. Invoice
// counters restart every month.
func (s Scope) Key(at time.Time) string {
	if s.monthly {
		return fmt.Sprintf("%s:%s", s.name, s.period(at))
	}
	return s.name
}

// Prefix is the fixed part every number issued at the given time starts with.
func (s Scope) Prefix(at time.Time) string {
	if s.monthly {
		return fmt.Sprintf("%s-%s-", s.prefix, s.period(at))
	}
	return s.prefix
}

func (s Scope) Format(at time.Time, seq int64) string {
	return fmt.Sprintf("%s%0*d", s.Prefix(at), s.width, seq)
}

// Parse extracts the trailing sequence from a number issued in the same
// period.
func (s Scope) Parse(number string, at time.Time) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(number), s.Prefix(at))
	if !ok || rest == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// Next derives the number after last. An empty or foreign last number starts
// the sequence at 1.
func (s Scope) Next(last string, at time.Time) string {
	seq, _ := s.Parse(last, at)
	return s.Format(at, seq+1)
}

func (s Scope) period(at time.Time) string {
	return at.UTC().Format("200601")
}
