package pii

import (
	"math"
	"strconv"
	"strings"
)

const (
	onnxModelName = "onnx-token-classifier"
	parserONNX    = "onnx"

	// tokens whose best label scores below this are treated as outside any entity
	minTokenConfidence = 0.5
)

// tokenOffset is the half-open byte range of one token in the input. Special tokens carry an
// empty range.
type tokenOffset struct {
	start, end int
}

// labelSet decodes per-token logits into BIO labels.
type labelSet struct {
	id2label  map[string]string
	numLabels int
}

// newLabelSet derives the label count from the highest numeric id. "-100" (ignore) and other
// non-numeric ids are skipped.
func newLabelSet(id2label map[string]string) labelSet {
	numLabels := 0
	for idStr := range id2label {
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			continue
		}
		if id >= numLabels {
			numLabels = id + 1
		}
	}
	return labelSet{id2label: id2label, numLabels: numLabels}
}

// best returns the label with the highest logit and its softmax probability.
func (l labelSet) best(logits []float32) (string, float64) {
	if len(logits) == 0 {
		return "O", 0
	}
	bestClass := 0
	maxLogit := float64(logits[0])
	for j, logit := range logits {
		if float64(logit) > maxLogit {
			maxLogit = float64(logit)
			bestClass = j
		}
	}

	// shifted by the max for numerical stability
	var sum float64
	for _, logit := range logits {
		sum += math.Exp(float64(logit) - maxLogit)
	}
	confidence := 1 / sum

	label, ok := l.id2label[strconv.Itoa(bestClass)]
	if !ok {
		label = "O"
	}
	return label, confidence
}

// mergeTokenPredictions groups consecutive B-/I- tokens of one label into matches. logits
// holds numLabels values per token, row-major.
func mergeTokenPredictions(text string, logits []float32, offsets []tokenOffset, labels labelSet) []Match {
	matches := []Match{}
	if labels.numLabels == 0 {
		return matches
	}

	var (
		current    *Match
		label      string
		confidence []float64
	)
	flush := func() {
		if current == nil {
			return
		}
		if inBounds(text, current.Start, current.End) && current.End > current.Start {
			current.Value = text[current.Start:current.End]
			current.Type = modelLabelTypes.lookup(label)
			current.Resolved = true
			var sum float64
			for _, c := range confidence {
				sum += c
			}
			current.Confidence = clampConfidence(sum / float64(len(confidence)))
			matches = append(matches, *current)
		} else {
			dropItem(parserONNX, reasonOutOfRange, "start", current.Start, "end", current.End)
		}
		current, label, confidence = nil, "", nil
	}

	for i, off := range offsets {
		lo, hi := i*labels.numLabels, (i+1)*labels.numLabels
		if hi > len(logits) {
			break
		}
		tokenLabel, tokenConfidence := labels.best(logits[lo:hi])
		if tokenConfidence < minTokenConfidence || off.end <= off.start {
			tokenLabel = "O"
		}

		isInside := strings.HasPrefix(tokenLabel, "I-")
		baseLabel := strings.TrimPrefix(strings.TrimPrefix(tokenLabel, "B-"), "I-")

		switch {
		case tokenLabel == "O":
			flush()
		case isInside && current != nil && label == baseLabel:
			current.End = off.end
			confidence = append(confidence, tokenConfidence)
		default:
			// B- tags, bare labels and orphaned I- tags open a new match
			flush()
			current = &Match{Start: off.start, End: off.end}
			label = baseLabel
			confidence = []float64{tokenConfidence}
		}
	}
	flush()
	return matches
}
