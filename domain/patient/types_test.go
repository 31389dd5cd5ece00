package patient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The record is a wire type for the drift endpoint and the JSONB column, so
// every populated field must serialize under its snake_case name.
func TestRawPatientRecordWireFormat(t *testing.T) {
	age := 72.0
	los := 5.0
	prev := 3.0
	rec := RawPatientRecord{
		PatientID:             "PT-00042",
		Age:                   &age,
		LengthOfStay:          &los,
		NumPreviousAdmissions: &prev,
		ChronicConditions:     []string{"Heart Failure", "CKD"},
	}

	data, err := json.Marshal(&rec)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{"patient_id", "age", "length_of_stay", "num_previous_admissions", "chronic_conditions"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "Age")
	assert.NotContains(t, raw, "LengthOfStay")

	var back RawPatientRecord
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Age)
	assert.Equal(t, 72.0, *back.Age)
	assert.Equal(t, []string{"Heart Failure", "CKD"}, back.ChronicConditions)
}

func TestHasCondition(t *testing.T) {
	rec := RawPatientRecord{ChronicConditions: []string{"COPD", "Type 2 Diabetes"}}
	assert.True(t, rec.HasCondition("COPD"))
	assert.False(t, rec.HasCondition("CKD"))
}
