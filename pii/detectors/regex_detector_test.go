package pii

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexDetector_Detect_NoMatches(t *testing.T) {
	detector := NewRegexDetector(map[string]string{
		"SOCIALNUM": `\b\d{3}-\d{2}-\d{4}\b`,
	})

	res, err := detector.Detect(context.Background(), "This text has no SSN numbers.")
	require.NoError(t, err)
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
	assert.Equal(t, "regex", res.ModelUsed)
}

func TestRegexDetector_Detect_WithMatches(t *testing.T) {
	detector := NewRegexDetector(map[string]string{
		"SOCIALNUM": `\b\d{3}-\d{2}-\d{4}\b`,
	})

	res, err := detector.Detect(context.Background(), "My SSN is 123-45-6789 and another is 987-65-4321.")
	require.NoError(t, err)

	require.Len(t, res.Matches, 2)
	assert.Equal(t, Match{Type: PIITypeSSN, Value: "123-45-6789", Start: 10, End: 21, Resolved: true, Confidence: 1.0}, res.Matches[0])
	assert.Equal(t, Match{Type: PIITypeSSN, Value: "987-65-4321", Start: 37, End: 48, Resolved: true, Confidence: 1.0}, res.Matches[1])
}

func TestRegexDetector_Detect_CaptureGroup(t *testing.T) {
	detector := NewRegexDetector(map[string]string{
		"ACCOUNTNUM": PIIPatterns["ACCOUNTNUM"],
	})

	res, err := detector.Detect(context.Background(), "wire it to account #123456789 today")
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "123456789", res.Matches[0].Value)
	assert.Equal(t, PIITypeBankAccount, res.Matches[0].Type)
}

func TestRegexDetector_DefaultPatterns(t *testing.T) {
	detector := NewDefaultRegexDetector()
	text := "Mail john@example.com, call 555-123-4567, SSN 123-45-6789, host 192.168.1.20"

	res, err := detector.Detect(context.Background(), text)
	require.NoError(t, err)

	found := make(map[PIIType]string)
	for i, m := range res.Matches {
		assert.Equal(t, m.Value, text[m.Start:m.End])
		if i > 0 {
			assert.LessOrEqual(t, res.Matches[i-1].Start, m.Start)
		}
		found[m.Type] = m.Value
	}
	assert.Equal(t, "john@example.com", found[PIITypeEmail])
	assert.Equal(t, "555-123-4567", found[PIITypePhone])
	assert.Equal(t, "123-45-6789", found[PIITypeSSN])
	assert.Equal(t, "192.168.1.20", found[PIITypeIPAddress])
}

func TestRegexDetector_Detect_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDefaultRegexDetector().Detect(ctx, "123-45-6789")
	assert.ErrorIs(t, err, context.Canceled)
}
