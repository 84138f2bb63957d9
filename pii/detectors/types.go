package pii

import "encoding/json"

// PIIType is a category in the canonical taxonomy every backend vocabulary is mapped onto.
type PIIType string

const (
	PIITypeName          PIIType = "name"
	PIITypeEmail         PIIType = "email"
	PIITypePhone         PIIType = "phone"
	PIITypeAddress       PIIType = "address"
	PIITypeSSN           PIIType = "ssn"
	PIITypeCreditCard    PIIType = "credit_card"
	PIITypeDate          PIIType = "date"
	PIITypeIPAddress     PIIType = "ip_address"
	PIITypeDriverLicense PIIType = "driver_license"
	PIITypePassport      PIIType = "passport"
	PIITypeBankAccount   PIIType = "bank_account"
	// PIITypeCustom is the catch-all for native types without a mapping.
	PIITypeCustom PIIType = "custom"
)

// AllPIITypes lists the closed taxonomy.
var AllPIITypes = []PIIType{
	PIITypeName,
	PIITypeEmail,
	PIITypePhone,
	PIITypeAddress,
	PIITypeSSN,
	PIITypeCreditCard,
	PIITypeDate,
	PIITypeIPAddress,
	PIITypeDriverLicense,
	PIITypePassport,
	PIITypeBankAccount,
	PIITypeCustom,
}

// Valid reports whether t is a member of the taxonomy.
func (t PIIType) Valid() bool {
	for _, known := range AllPIITypes {
		if t == known {
			return true
		}
	}
	return false
}

// Match is one normalized PII finding.
//
// Start and End are half-open byte offsets into the original UTF-8 input. When Resolved is
// false the backend reported the value but its position could not be established; Start and
// End are then both zero and must not be used for slicing.
type Match struct {
	Type       PIIType `json:"type"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Resolved   bool    `json:"resolved"`
	Confidence float64 `json:"confidence"`
}

// GuardResult is the normalized output of one Detect call.
// Matches keeps the backend's reporting order and is never nil.
type GuardResult struct {
	Matches     []Match         `json:"matches"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
	ModelUsed   string          `json:"model_used,omitempty"`
}

func newGuardResult(modelUsed string, raw []byte) GuardResult {
	res := GuardResult{
		Matches:   []Match{},
		ModelUsed: modelUsed,
	}
	if json.Valid(raw) {
		res.RawResponse = json.RawMessage(raw)
	}
	return res
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// objectFields splits a JSON object into its members. ok is false when data is not an object.
func objectFields(data []byte) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// lenientField decodes fields[key] into a T. An absent key or a value of the wrong type yields
// the zero T; the latter is counted as a dropped item for parser.
func lenientField[T any](fields map[string]json.RawMessage, key, parser string) T {
	var v T
	raw, ok := fields[key]
	if !ok {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		dropItem(parser, reasonMalformedItem, "field", key, "error", err)
		var zero T
		return zero
	}
	return v
}
