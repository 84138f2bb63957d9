package pii

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderLlama      = "llama"
	ProviderLlamaGuard = "llama-guard"
	ProviderBedrock    = "bedrock"
	ProviderAWS        = "aws"
	ProviderPresidio   = "presidio"
	ProviderOpenAI     = "openai"
	ProviderGPT        = "gpt"
	ProviderONNX       = "onnx"

	// ProviderRegex and ProviderNone select no guard backend; callers fall back to the
	// regex detector.
	ProviderRegex = "regex"
	ProviderNone  = "none"
)

var (
	ErrUnknownProvider = errors.New("unknown guard provider")
	ErrMissingOption   = errors.New("missing required option")
)

// Guard is implemented by every detection backend.
// Implementations are safe for concurrent use.
type Guard interface {
	Detect(ctx context.Context, text string) (GuardResult, error)
}

// Options carries backend construction settings. Keys a backend does not recognize are
// forwarded to its client or request unchanged where the client allows it.
type Options map[string]any

// String returns the string option for key, or def when it is absent or empty.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Duration accepts a time.Duration, a duration string ("30s") or a number of seconds.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	switch v := o[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// extras returns the options not listed in known.
func (o Options) extras(known ...string) map[string]any {
	out := make(map[string]any)
	for k, v := range o {
		isKnown := false
		for _, name := range known {
			if k == name {
				isKnown = true
				break
			}
		}
		if !isKnown {
			out[k] = v
		}
	}
	return out
}

type NewGuardFunc func(opts Options) (Guard, error)

var guardFactories = make(map[string]NewGuardFunc)

func registerGuardFactory(name string, factory NewGuardFunc) {
	guardFactories[name] = factory
}

// NewGuard constructs the backend registered under provider. The client behind a backend is
// only built when its identifier is selected.
//
// "regex", "none" and "" return a nil Guard and a nil error: no guard backend is configured
// and the caller should use the regex detector. Any other unregistered identifier returns an
// error wrapping ErrUnknownProvider.
func NewGuard(provider string, opts Options) (Guard, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if err := CheckProvider(provider); err != nil {
		return nil, err
	}
	factory, ok := guardFactories[provider]
	if !ok {
		return nil, nil
	}
	if opts == nil {
		opts = Options{}
	}
	guard, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s guard: %w", provider, err)
	}
	return instrument(provider, guard), nil
}

// CheckProvider reports whether provider names a registered backend or the regex fallback.
// The error wraps ErrUnknownProvider and lists every valid identifier.
func CheckProvider(provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	switch provider {
	case ProviderRegex, ProviderNone, "":
		return nil
	}
	if _, ok := guardFactories[provider]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s. Supported: [%s]",
		ErrUnknownProvider, provider, strings.Join(SupportedProviders(), ", "))
}

// SupportedProviders lists the registered identifiers in sorted order.
func SupportedProviders() []string {
	names := make([]string, 0, len(guardFactories))
	for name := range guardFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	llama := func(opts Options) (Guard, error) { return NewLlamaGuard(opts) }
	bedrock := func(opts Options) (Guard, error) { return NewBedrockGuard(context.Background(), opts) }
	presidio := func(opts Options) (Guard, error) { return NewPresidioGuard(opts) }
	openAI := func(opts Options) (Guard, error) { return NewOpenAIGuard(opts) }

	registerGuardFactory(ProviderLlama, llama)
	registerGuardFactory(ProviderLlamaGuard, llama)
	registerGuardFactory(ProviderBedrock, bedrock)
	registerGuardFactory(ProviderAWS, bedrock)
	registerGuardFactory(ProviderPresidio, presidio)
	registerGuardFactory(ProviderOpenAI, openAI)
	registerGuardFactory(ProviderGPT, openAI)
}
