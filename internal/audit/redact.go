package audit

import (
	"encoding/json"
	"strings"
)

// redactPatterns are key substrings that always trigger redaction.
var redactPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"authorization",
	"cookie",
	"credential",
}

const redactedValue = "[REDACTED]"

// Redact replaces sensitive values in a JSON detail object with
// [REDACTED], recursing into nested objects.
func Redact(detail json.RawMessage) json.RawMessage {
	if len(detail) == 0 {
		return detail
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(detail, &obj); err != nil {
		return detail
	}

	changed := false
	for key, val := range obj {
		if shouldRedact(key) {
			redacted, _ := json.Marshal(redactedValue)
			obj[key] = redacted
			changed = true
			continue
		}
		if redacted := Redact(val); string(redacted) != string(val) {
			obj[key] = redacted
			changed = true
		}
	}

	if !changed {
		return detail
	}

	result, err := json.Marshal(obj)
	if err != nil {
		return detail
	}
	return result
}

func shouldRedact(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range redactPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
