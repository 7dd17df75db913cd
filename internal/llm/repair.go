package llm

import (
	"context"

	"go.uber.org/zap"

	"qaforge/internal/providers"
)

const (
	DefaultJSONRetries    = 1
	DefaultRepairMaxChars = 6000
)

type RepairOptions struct {
	Retries  int
	MaxChars int
	// Label identifies the unit of work in logs, usually a file name.
	Label  string
	Invoke Options
}

// ParseWithRepair decodes raw and hands the value to accept. When either
// step fails the model is asked to repair its own output, up to
// opts.Retries times. Running out of repairs is not an error: the zero value
// is returned and a warning logged. Only invocation failures are returned.
func ParseWithRepair[T any](ctx context.Context, client providers.LLMProvider, raw string, opts RepairOptions, accept func(any) (T, error)) (T, error) {
	var zero T
	inv := opts.Invoke.withDefaults()
	retries := max(0, opts.Retries)
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultRepairMaxChars
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if inv.Cancelled(ctx) {
			return zero, nil
		}
		data, err := SafeJSONLoads(raw)
		if err == nil {
			out, aerr := accept(data)
			if aerr == nil {
				return out, nil
			}
			err = aerr
		}
		lastErr = err
		if attempt < retries {
			req := providers.GenerateRequest{Operation: providers.OpRepairJSON, Prompt: repairPrompt(raw, maxChars)}
			raw, err = Invoke(ctx, client, req, inv)
			if err != nil {
				return zero, err
			}
		}
	}
	inv.Logger.Warn("model json unusable after repair", zap.String("label", opts.Label), zap.Error(lastErr))
	return zero, nil
}

func repairPrompt(raw string, maxChars int) string {
	snippet := raw
	if r := []rune(raw); len(r) > maxChars {
		snippet = string(r[:maxChars])
	}
	return "Исправь ответ и верни ТОЛЬКО валидный JSON-объект вида {\"items\": [...]}.\n" +
		"Никакого текста вне JSON. Если исправить нельзя, верни {\"items\": []}.\n\n" +
		"ОТВЕТ:\n" + snippet
}
