package llm

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// ExtractJSONBlob pulls the first syntactically valid JSON object or array
// out of arbitrary model output. Code-fence markers are stripped first and
// the whole trimmed text is tried as JSON; failing that, a bracket-depth
// scan collects every span that returns the depth to zero and parses each
// candidate in order. Mismatched brackets reset the scan so a candidate
// never bridges unrelated braces. Returns "" when nothing parses.
func ExtractJSONBlob(text string) string {
	cleaned := stripFences(text)

	if json.Valid([]byte(cleaned)) && cleaned != "" {
		return cleaned
	}

	var stack []byte
	start := -1
	for i := 0; i < len(cleaned); i++ {
		ch := cleaned[i]
		switch ch {
		case '{', '[':
			if len(stack) == 0 {
				start = i
			}
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if (open == '{' && ch != '}') || (open == '[' && ch != ']') {
				stack = stack[:0]
				start = -1
				continue
			}
			if len(stack) == 0 && start >= 0 {
				candidate := cleaned[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				start = -1
			}
		}
	}
	return ""
}

func stripFences(text string) string {
	out := strings.ReplaceAll(text, "```json", "")
	out = strings.ReplaceAll(out, "```JSON", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}

const jsonSuffix = "\n\nReturn ONLY valid JSON. Do not include any prose. " +
	"Use double-quoted keys/strings and proper JSON types."

const strictSuffix = "\n\nReturn STRICT JSON only. No extra text. " +
	`Example: {"status":"pass","reasons":[],"missing":[],"red_flags":[]}`

// AskJSON runs the prompt through the generator and coerces the output to a
// JSON object. On failure it retries once with a stricter instruction, then
// returns def (or an empty map). It never returns an error: model failure
// degrades to the caller-supplied default.
func AskJSON(ctx context.Context, g Generator, prompt string, def map[string]any) map[string]any {
	if g == nil {
		return defaulted(def)
	}

	if out, ok := tryOnce(ctx, g, prompt+jsonSuffix); ok {
		return out
	}
	if out, ok := tryOnce(ctx, g, prompt+strictSuffix); ok {
		return out
	}
	return defaulted(def)
}

func tryOnce(ctx context.Context, g Generator, prompt string) (map[string]any, bool) {
	text, err := g.Complete(ctx, prompt)
	if err != nil {
		zap.L().Warn("model completion failed", zap.Error(err))
		return nil, false
	}
	blob := ExtractJSONBlob(text)
	if blob == "" {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(blob), &out); err != nil {
		return nil, false
	}
	return out, true
}

func defaulted(def map[string]any) map[string]any {
	if def == nil {
		return map[string]any{}
	}
	return def
}
