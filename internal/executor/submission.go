package executor

import (
	"encoding/json"
	"strings"
)

// DecodeSubmission extracts the script from a request body of the form
// {"script": "<text>"}.
func DecodeSubmission(body []byte) (string, error) {
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil || req == nil {
		return "", InputError(MsgInvalidJSON)
	}
	return ValidateScript(req["script"])
}

// ValidateScript accepts only a string with non-whitespace content. The
// script itself is returned untrimmed.
func ValidateScript(v any) (string, error) {
	script, ok := v.(string)
	if !ok || strings.TrimSpace(script) == "" {
		return "", InputError(MsgScriptRequired)
	}
	return script, nil
}
