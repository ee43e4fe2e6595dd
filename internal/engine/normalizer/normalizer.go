package normalizer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tiger/kobayashi/internal/schema"
)

var fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// ExtractJSON pulls the JSON object out of free-form model text: a fenced
// json block when present, else the span from the first '{' to the last '}'.
func ExtractJSON(text string) (string, bool) {
	if match := fencedJSON.FindStringSubmatch(text); match != nil {
		if body := strings.TrimSpace(match[1]); body != "" {
			return body, true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}
	return "", false
}

// Normalizer coerces live-provider output into strict contracts. Every
// method returns ok=false instead of failing so callers fall back to the
// deterministic engine.
type Normalizer struct {
	validator *schema.Validator
}

// New returns a Normalizer backed by validator.
func New(validator *schema.Validator) *Normalizer {
	return &Normalizer{validator: validator}
}

// recoverInto converts a panic in coercion code into a fallback signal.
func recoverInto(ok *bool) {
	if r := recover(); r != nil {
		*ok = false
	}
}

// object is a decoded JSON object with alias-tolerant key lookup.
type object map[string]any

func decodeObject(raw []byte) (object, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return asObject(value)
}

func asObject(value any) (object, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return object(m), true
}

func normalizeKey(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
}

// get returns the first value whose normalized key matches one of names.
func (o object) get(names ...string) (any, bool) {
	if o == nil {
		return nil, false
	}
	for _, name := range names {
		if value, ok := o[name]; ok && value != nil {
			return value, true
		}
	}
	wanted := make(map[string]int, len(names))
	for i, name := range names {
		wanted[normalizeKey(name)] = i
	}
	best := -1
	var found any
	for key, value := range o {
		if value == nil {
			continue
		}
		if i, ok := wanted[normalizeKey(key)]; ok && (best < 0 || i < best) {
			best = i
			found = value
		}
	}
	return found, best >= 0
}

func (o object) str(names ...string) string {
	for _, name := range names {
		value, ok := o.get(name)
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func (o object) number(names ...string) (float64, bool) {
	value, ok := o.get(names...)
	if !ok {
		return 0, false
	}
	return toNumber(value)
}

func (o object) child(names ...string) object {
	value, ok := o.get(names...)
	if !ok {
		return nil
	}
	child, _ := asObject(value)
	return child
}

func (o object) boolean(names ...string) (bool, bool) {
	value, ok := o.get(names...)
	if !ok {
		return false, false
	}
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return parsed, err == nil
	default:
		return false, false
	}
}

func (o object) stringList(names ...string) []string {
	value, ok := o.get(names...)
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func (o object) objects(names ...string) []object {
	value, ok := o.get(names...)
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]object, 0, len(items))
	for _, item := range items {
		child, _ := asObject(item)
		out = append(out, child)
	}
	return out
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var whitespace = regexp.MustCompile(`\s+`)

// sentence collapses whitespace and terminates the text with punctuation.
func sentence(input string) string {
	trimmed := strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
	if trimmed == "" {
		return ""
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return trimmed
	default:
		return trimmed + "."
	}
}

func truncateRunes(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max]))
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
