package pii

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Fixed confidences for backends that do not score their findings.
const (
	llamaGuardConfidence = 0.85
	openAIConfidence     = 0.90
)

const (
	parserLlamaGuard = "llama_guard"
	parserOpenAI     = "openai"
)

// llmItem is one {type, value, start, end} entry produced by a prompted language model.
type llmItem struct {
	Type  *string     `json:"type"`
	Value *string     `json:"value"`
	Start optionalInt `json:"start"`
	End   optionalInt `json:"end"`
}

// optionalInt accepts 12, 12.0 and "12". Anything else, including null, leaves it unset
// instead of failing the surrounding item.
type optionalInt struct {
	value int
	set   bool
}

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		*o = optionalInt{}
		return nil
	}
	*o = optionalInt{value: int(f), set: true}
	return nil
}

// ParseLlamaGuardResponse normalizes an Ollama /api/generate body whose "response" field holds
// a JSON array of {type, value, start, end}. Values are located in text by substring search;
// a reported start offset only picks between repeated occurrences. Malformed content yields
// fewer or zero matches, never an error. Only "response" is read, and the token "context" is
// left out of RawResponse.
func ParseLlamaGuardResponse(text string, body []byte, model string) GuardResult {
	fields, ok := objectFields(body)
	if !ok {
		dropItem(parserLlamaGuard, reasonMalformedPayload)
		return newGuardResult(model, body)
	}
	// context holds the prompt's token ids, and so the input text
	delete(fields, "context")
	raw, err := json.Marshal(fields)
	if err != nil {
		raw = nil
	}
	res := newGuardResult(model, raw)

	response := lenientField[string](fields, "response", parserLlamaGuard)
	if strings.TrimSpace(response) == "" {
		return res
	}

	items, ok := extractItems(response)
	if !ok {
		dropItem(parserLlamaGuard, reasonMalformedPayload)
		return res
	}

	for _, raw := range items {
		item, ok := decodeItem(parserLlamaGuard, raw)
		if !ok {
			continue
		}
		value := *item.Value

		var start, end int
		var found bool
		if item.Start.set {
			start, end, found = ResolveSpanNear(text, value, hintOffset(text, item.Start.value))
		} else {
			start, end, found = ResolveSpan(text, value)
		}
		if !found {
			dropItem(parserLlamaGuard, reasonSpanNotFound)
			continue
		}

		res.Matches = append(res.Matches, Match{
			Type:       llamaGuardTypes.lookup(*item.Type),
			Value:      value,
			Start:      start,
			End:        end,
			Resolved:   true,
			Confidence: llamaGuardConfidence,
		})
	}
	return res
}

// ParseOpenAIContent normalizes the message content of a chat completion: a JSON object
// holding the item array under "pii" or "results", or the array itself. Offsets supplied by
// the model are trusted when they fall inside text; otherwise the value is searched for.
func ParseOpenAIContent(text, content, model string) GuardResult {
	raw, _ := json.Marshal(map[string]string{"content": content})
	res := newGuardResult(model, raw)

	items, ok := extractItems(content)
	if !ok {
		dropItem(parserOpenAI, reasonMalformedPayload)
		return res
	}

	for _, rawItem := range items {
		item, ok := decodeItem(parserOpenAI, rawItem)
		if !ok {
			continue
		}
		value := *item.Value

		start, end, found := reportedSpan(text, value, item)
		if !found {
			start, end, found = ResolveSpan(text, value)
		}
		if !found {
			dropItem(parserOpenAI, reasonSpanNotFound)
			continue
		}

		res.Matches = append(res.Matches, Match{
			Type:       openAITypes.lookup(*item.Type),
			Value:      value,
			Start:      start,
			End:        end,
			Resolved:   true,
			Confidence: openAIConfidence,
		})
	}
	return res
}

// reportedSpan converts model-reported character offsets into a byte span.
// A missing end is derived from the value length.
func reportedSpan(text, value string, item llmItem) (int, int, bool) {
	if !item.Start.set {
		return 0, 0, false
	}
	start, ok := runeToByteOffset(text, item.Start.value)
	if !ok {
		return 0, 0, false
	}
	end := start + len(value)
	if item.End.set {
		if end, ok = runeToByteOffset(text, item.End.value); !ok {
			return 0, 0, false
		}
	}
	if !inBounds(text, start, end) {
		return 0, 0, false
	}
	return start, end, true
}

// hintOffset turns a reported character offset into a byte position usable as a search hint,
// clamping values outside the text.
func hintOffset(text string, runeOffset int) int {
	if runeOffset <= 0 {
		return 0
	}
	if off, ok := runeToByteOffset(text, runeOffset); ok {
		return off
	}
	return len(text)
}

// decodeItem decodes a single list entry. Entries without a type or a non-empty value are
// skipped.
func decodeItem(parser string, raw json.RawMessage) (llmItem, bool) {
	var item llmItem
	if err := json.Unmarshal(raw, &item); err != nil {
		dropItem(parser, reasonMalformedItem, "error", err)
		return llmItem{}, false
	}
	if item.Type == nil || item.Value == nil || *item.Value == "" {
		dropItem(parser, reasonMissingField)
		return llmItem{}, false
	}
	return item, true
}

// extractItems pulls the list of findings out of model output.
func extractItems(content string) ([]json.RawMessage, bool) {
	content = stripCodeFence(stripThinkBlock(strings.TrimSpace(content)))
	if content == "" {
		return nil, false
	}

	var doc json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		// models sometimes wrap the answer in prose
		extracted := extractJSONArray(content)
		if extracted == content {
			return nil, false
		}
		if err := json.Unmarshal([]byte(extracted), &doc); err != nil {
			return nil, false
		}
	}
	return itemsFromDocument(doc)
}

func itemsFromDocument(doc json.RawMessage) ([]json.RawMessage, bool) {
	var list []json.RawMessage
	if err := json.Unmarshal(doc, &list); err == nil {
		return list, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, false
	}
	for _, key := range []string{"pii", "results"} {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, false
		}
		return list, true
	}
	return nil, false
}

// extractJSONArray finds the outermost [...] substring in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// stripThinkBlock removes a leading <think>...</think> reasoning block.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		// unclosed block, drop everything from <think> onwards
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
