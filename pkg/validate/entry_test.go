package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryShape(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		valid  bool
		reason string
	}{
		{
			name:  "valid entry",
			input: `{"symptoms":["headache"],"severity":7,"potential_triggers":["caffeine"]}`,
			valid: true,
		},
		{
			name:  "empty arrays are still arrays",
			input: `{"symptoms":[],"severity":0,"potential_triggers":[]}`,
			valid: true,
		},
		{
			name:   "malformed json",
			input:  `{"symptoms":`,
			valid:  false,
			reason: "Malformed JSON",
		},
		{
			name:   "root not an object",
			input:  `[1,2,3]`,
			valid:  false,
			reason: "Malformed JSON",
		},
		{
			name:   "missing symptoms",
			input:  `{"severity":7,"potential_triggers":[]}`,
			valid:  false,
			reason: "Missing or invalid 'symptoms' (must be array)",
		},
		{
			name:   "symptoms not an array",
			input:  `{"symptoms":"headache","severity":7,"potential_triggers":[]}`,
			valid:  false,
			reason: "Missing or invalid 'symptoms' (must be array)",
		},
		{
			name:   "severity missing",
			input:  `{"symptoms":[],"potential_triggers":[]}`,
			valid:  false,
			reason: "Missing or invalid 'severity' (must be number)",
		},
		{
			name:   "severity not a number",
			input:  `{"symptoms":[],"severity":"7","potential_triggers":[]}`,
			valid:  false,
			reason: "Missing or invalid 'severity' (must be number)",
		},
		{
			name:   "severity out of range",
			input:  `{"symptoms":[],"severity":11,"potential_triggers":[]}`,
			valid:  false,
			reason: "Severity must be between 0 and 10",
		},
		{
			name:   "severity negative",
			input:  `{"symptoms":[],"severity":-1,"potential_triggers":[]}`,
			valid:  false,
			reason: "Severity must be between 0 and 10",
		},
		{
			name:   "triggers not an array",
			input:  `{"symptoms":[],"severity":5,"potential_triggers":{"a":1}}`,
			valid:  false,
			reason: "Missing or invalid 'potential_triggers' (must be array)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := EntryShape(tc.input)
			assert.Equal(t, tc.valid, result.Valid)
			if !tc.valid {
				assert.Equal(t, tc.reason, result.Reason)
			}
		})
	}
}
