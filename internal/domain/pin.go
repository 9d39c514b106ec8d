package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PIN is a staff PIN as submitted by a client. Terminals send it either as a
// JSON string or a bare number; both decode to the same trimmed string.
type PIN string

func (p *PIN) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PIN(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pin must be a string or number")
	}
	*p = PIN(n.String())
	return nil
}

func (p PIN) String() string {
	return strings.TrimSpace(string(p))
}
