package validate

import "encoding/json"

const (
	severityMin = 0
	severityMax = 10
)

// Result carries the outcome of a shape check on extraction output.
type Result struct {
	Valid  bool
	Reason string
}

func invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// EntryShape gates raw extraction JSON before it is trusted: the root
// must be an object with a symptoms array, a numeric severity in [0,10]
// and a potential_triggers array. It is a defensive check independent
// of the domain validation applied later (where severity is 1..10).
func EntryShape(jsonText string) Result {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonText), &root); err != nil {
		return invalid("Malformed JSON")
	}

	symptoms, ok := root["symptoms"]
	if !ok || !isArray(symptoms) {
		return invalid("Missing or invalid 'symptoms' (must be array)")
	}

	severityRaw, ok := root["severity"]
	if !ok {
		return invalid("Missing or invalid 'severity' (must be number)")
	}
	var severity float64
	if err := json.Unmarshal(severityRaw, &severity); err != nil {
		return invalid("Missing or invalid 'severity' (must be number)")
	}
	if severity < severityMin || severity > severityMax {
		return invalid("Severity must be between 0 and 10")
	}

	triggers, ok := root["potential_triggers"]
	if !ok || !isArray(triggers) {
		return invalid("Missing or invalid 'potential_triggers' (must be array)")
	}

	return Result{Valid: true}
}

func isArray(raw json.RawMessage) bool {
	var arr []json.RawMessage
	return json.Unmarshal(raw, &arr) == nil
}
