package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateAcceptsPlainAndRFC3339(t *testing.T) {
	var body struct {
		Plain    *Date `json:"plain"`
		Stamped  *Date `json:"stamped"`
		Missing  *Date `json:"missing"`
		Explicit *Date `json:"explicit"`
	}
	raw := `{"plain":"2026-10-15","stamped":"2026-10-15T21:30:00+07:00","explicit":null}`
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Plain.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected plain date %v", body.Plain.Time)
	}
	if !body.Stamped.Equal(time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected stamped date %v", body.Stamped.Time)
	}
	if body.Missing.TimePtr() != nil || body.Explicit.TimePtr() != nil {
		t.Fatalf("expected missing and null dates to be nil")
	}
}

func TestDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"15/10/2026"`, `"tomorrow"`, `20261015`} {
		var d Date
		if err := json.Unmarshal([]byte(raw), &d); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}
