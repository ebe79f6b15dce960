package spreadsheet

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// normalizeHeader lower-cases a header cell, turns runs of whitespace and hyphens
// into "_" and drops everything outside [a-z0-9_]. "Parent Dept. Code" becomes
// "parent_dept_code" and "pos-code" becomes "pos_code".
func normalizeHeader(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingSep = b.Len() > 0
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// parseBool accepts true/false and 1/0 in any case. Empty is false.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return false, true
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// parseCount accepts non-negative integers and integral floats like "3.0". Empty is 0.
func parseCount(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

type metadataOutcome int

const (
	metadataAbsent metadataOutcome = iota
	metadataParsed
	metadataPlainText
	metadataInvalid
)

// parseMetadata parses JSON-looking cells into an object. Plain text is kept
// under the "text" key.
func parseMetadata(s string) (map[string]any, metadataOutcome) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, metadataAbsent
	}
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return map[string]any{"text": s}, metadataPlainText
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, metadataInvalid
	}
	return obj, metadataParsed
}
