package pii

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeMaps_Total(t *testing.T) {
	maps := map[string]typeMap{
		"llama_guard": llamaGuardTypes,
		"openai":      openAITypes,
		"bedrock":     bedrockTypes,
		"presidio":    presidioTypes,
		"model":       modelLabelTypes,
	}
	inputs := []string{"", "name", "NAME", "PERSON", "unheard_of", "ñandú", "  email ", "\x00", "CREDIT_DEBIT_NUMBER"}

	for name, m := range maps {
		t.Run(name, func(t *testing.T) {
			for native, want := range m.table {
				assert.True(t, want.Valid(), "table entry %q maps outside the taxonomy", native)
				assert.Equal(t, want, m.lookup(native))
			}
			for _, in := range inputs {
				assert.True(t, m.lookup(in).Valid(), "lookup(%q)", in)
			}
		})
	}
}

func TestTypeMaps_CaseHandling(t *testing.T) {
	assert.Equal(t, PIITypeName, llamaGuardTypes.lookup("Name"))
	assert.Equal(t, PIITypeSSN, llamaGuardTypes.lookup("SOCIAL_SECURITY"))
	assert.Equal(t, PIITypeIPAddress, openAITypes.lookup("IP_ADDRESS"))

	// structured vocabularies are matched exactly
	assert.Equal(t, PIITypeCustom, bedrockTypes.lookup("name"))
	assert.Equal(t, PIITypeCustom, presidioTypes.lookup("person"))
	assert.Equal(t, PIITypeBankAccount, presidioTypes.lookup("IBAN_CODE"))
}

func TestTypeMaps_UnknownIsCustom(t *testing.T) {
	assert.Equal(t, PIITypeCustom, llamaGuardTypes.lookup("favorite_color"))
	assert.Equal(t, PIITypeCustom, openAITypes.lookup("date_of_birth"))
	assert.Equal(t, PIITypeCustom, bedrockTypes.lookup("UNKNOWN"))
	assert.Equal(t, PIITypeCustom, presidioTypes.lookup("NRP"))
}

func TestPIIType_Valid(t *testing.T) {
	for _, typ := range AllPIITypes {
		assert.True(t, typ.Valid())
	}
	assert.False(t, PIIType("favorite_color").Valid())
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.42, 0.42},
		{-1, 0},
		{1.5, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampConfidence(tt.in))
	}
}

func TestNewGuardResult(t *testing.T) {
	res := newGuardResult("m", []byte(`{"a":1}`))
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
	assert.JSONEq(t, `{"a":1}`, string(res.RawResponse))
	assert.Equal(t, "m", res.ModelUsed)

	res = newGuardResult("m", []byte("not json"))
	assert.Nil(t, res.RawResponse)

	// an empty result still serializes matches as a list
	data, err := json.Marshal(newGuardResult("", nil))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"matches":[]}`, string(data))
}
