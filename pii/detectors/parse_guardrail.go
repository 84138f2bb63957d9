package pii

const (
	bedrockConfidence = 0.95
	bedrockModelName  = "bedrock-guardrails"
	parserBedrock     = "bedrock"
)

// guardrailPayload mirrors the parts of an ApplyGuardrail response the parser reads.
// Assessments appear nested under each output in captured payloads and at the top level in
// the service API; both are walked.
type guardrailPayload struct {
	Outputs     []guardrailOutput     `json:"outputs,omitempty"`
	Assessments []guardrailAssessment `json:"assessments,omitempty"`
	Action      string                `json:"action,omitempty"`
}

type guardrailOutput struct {
	Text        *string               `json:"text,omitempty"`
	Assessments []guardrailAssessment `json:"assessments,omitempty"`
}

type guardrailAssessment struct {
	SensitiveInformationPolicy *guardrailSensitiveInfo `json:"sensitiveInformationPolicy,omitempty"`
}

type guardrailSensitiveInfo struct {
	PiiEntities []guardrailEntity `json:"piiEntities,omitempty"`
}

type guardrailEntity struct {
	Type  *string `json:"type,omitempty"`
	Match *string `json:"match,omitempty"`
}

// The UnmarshalJSON methods below never fail. A field with an unexpected type decodes as
// empty and only that level is skipped, leaving its siblings intact.

func (o *guardrailOutput) UnmarshalJSON(data []byte) error {
	fields, ok := objectFields(data)
	if !ok {
		*o = guardrailOutput{}
		return nil
	}
	*o = guardrailOutput{
		Assessments: lenientField[[]guardrailAssessment](fields, "assessments", parserBedrock),
	}
	return nil
}

func (a *guardrailAssessment) UnmarshalJSON(data []byte) error {
	fields, ok := objectFields(data)
	if !ok {
		*a = guardrailAssessment{}
		return nil
	}
	*a = guardrailAssessment{
		SensitiveInformationPolicy: lenientField[*guardrailSensitiveInfo](fields, "sensitiveInformationPolicy", parserBedrock),
	}
	return nil
}

func (s *guardrailSensitiveInfo) UnmarshalJSON(data []byte) error {
	fields, ok := objectFields(data)
	if !ok {
		*s = guardrailSensitiveInfo{}
		return nil
	}
	*s = guardrailSensitiveInfo{
		PiiEntities: lenientField[[]guardrailEntity](fields, "piiEntities", parserBedrock),
	}
	return nil
}

func (e *guardrailEntity) UnmarshalJSON(data []byte) error {
	fields, ok := objectFields(data)
	if !ok {
		*e = guardrailEntity{}
		return nil
	}
	*e = guardrailEntity{
		Type:  lenientField[*string](fields, "type", parserBedrock),
		Match: lenientField[*string](fields, "match", parserBedrock),
	}
	return nil
}

// ParseGuardrailResponse normalizes a JSON ApplyGuardrail response. Missing or mistyped keys at
// any level count as zero entities at that level.
func ParseGuardrailResponse(text string, body []byte) GuardResult {
	fields, ok := objectFields(body)
	if !ok {
		dropItem(parserBedrock, reasonMalformedPayload)
		return newGuardResult(bedrockModelName, body)
	}
	payload := guardrailPayload{
		Outputs:     lenientField[[]guardrailOutput](fields, "outputs", parserBedrock),
		Assessments: lenientField[[]guardrailAssessment](fields, "assessments", parserBedrock),
	}
	return parseGuardrailPayload(text, payload, body)
}

// parseGuardrailPayload emits one match per reported PII entity. The guardrail reports the
// matched text but no offsets; the text is located by first occurrence and, when it cannot
// be found (for example because the service returned it masked), the match is kept with
// Resolved set to false.
func parseGuardrailPayload(text string, payload guardrailPayload, raw []byte) GuardResult {
	res := newGuardResult(bedrockModelName, raw)

	var assessments []guardrailAssessment
	for _, out := range payload.Outputs {
		assessments = append(assessments, out.Assessments...)
	}
	assessments = append(assessments, payload.Assessments...)

	for _, assessment := range assessments {
		if assessment.SensitiveInformationPolicy == nil {
			continue
		}
		for _, entity := range assessment.SensitiveInformationPolicy.PiiEntities {
			if entity.Match == nil || *entity.Match == "" {
				dropItem(parserBedrock, reasonMissingField)
				continue
			}
			nativeType := "UNKNOWN"
			if entity.Type != nil {
				nativeType = *entity.Type
			}

			match := Match{
				Type:       bedrockTypes.lookup(nativeType),
				Value:      *entity.Match,
				Confidence: bedrockConfidence,
			}
			if start, end, ok := ResolveSpan(text, *entity.Match); ok {
				match.Start, match.End, match.Resolved = start, end, true
			}
			res.Matches = append(res.Matches, match)
		}
	}
	return res
}
