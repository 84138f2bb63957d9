package pii

import "encoding/json"

const parserPresidio = "presidio"

// analyzerResult is one RecognizerResult as serialized by the Presidio analyzer.
type analyzerResult struct {
	EntityType *string     `json:"entity_type"`
	Start      optionalInt `json:"start"`
	End        optionalInt `json:"end"`
	Score      *float64    `json:"score"`
}

// ParsePresidioResponse normalizes the analyzer's list of typed spans. Offsets are native to
// the analyzer and trusted; they count code points and are converted to byte offsets, and
// the value is read from text at that span.
func ParsePresidioResponse(text string, body []byte, modelUsed string) GuardResult {
	res := newGuardResult(modelUsed, body)

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		dropItem(parserPresidio, reasonMalformedPayload, "error", err)
		return res
	}

	for _, raw := range items {
		var r analyzerResult
		if err := json.Unmarshal(raw, &r); err != nil {
			dropItem(parserPresidio, reasonMalformedItem, "error", err)
			continue
		}
		if r.EntityType == nil || !r.Start.set || !r.End.set || r.Score == nil {
			dropItem(parserPresidio, reasonMissingField)
			continue
		}

		start, okStart := runeToByteOffset(text, r.Start.value)
		end, okEnd := runeToByteOffset(text, r.End.value)
		if !okStart || !okEnd || !inBounds(text, start, end) {
			dropItem(parserPresidio, reasonOutOfRange, "start", r.Start.value, "end", r.End.value)
			continue
		}

		res.Matches = append(res.Matches, Match{
			Type:       presidioTypes.lookup(*r.EntityType),
			Value:      text[start:end],
			Start:      start,
			End:        end,
			Resolved:   true,
			Confidence: clampConfidence(*r.Score),
		})
	}
	return res
}
