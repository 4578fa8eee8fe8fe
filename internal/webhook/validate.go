package webhook

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"tvcornix-go/internal/signal"
)

// FieldError is a single validation violation tied to the field that
// caused it, so callers and tests can assert on rules without substring
// matching.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Result carries either a complete violation list or the validated signal.
type Result struct {
	Valid  bool
	Errors []FieldError
	Signal *signal.Signal
}

var (
	symbolRe = regexp.MustCompile(`(?i)^[A-Z0-9:._-]+$`)
	tagRe    = regexp.MustCompile(`(?i)^[A-Z0-9_#.\- ]+$`)
)

var tpFieldPairs = [signal.MaxTargets][2]string{
	{"tp1", "tp_1"},
	{"tp2", "tp_2"},
	{"tp3", "tp_3"},
	{"tp4", "tp_4"},
	{"tp5", "tp_5"},
}

// Validate normalizes a raw payload and applies every field rule,
// collecting all violations rather than stopping at the first. On success
// the returned Signal is case-normalized with numeric fields coerced and
// absent optionals left nil.
func Validate(raw map[string]any) Result {
	data := Normalize(raw)
	var errs []FieldError

	addMissing := func(field, note string) {
		errs = append(errs, FieldError{Field: field, Message: "missing required field" + note})
	}

	action := fieldString(data, "action")
	side := fieldString(data, "side")
	symbol := fieldString(data, "symbol")
	sizeType := fieldString(data, "size_type")
	tag := fieldString(data, "tag")

	if action == "" {
		addMissing("action", "")
	} else if a := strings.ToLower(action); a != "entry" && a != "sl" && a != "tp" && a != "exit" {
		errs = append(errs, FieldError{Field: "action", Message: fmt.Sprintf("invalid value %q, must be entry, sl, tp, or exit", action)})
	}

	if side == "" {
		addMissing("side", "")
	} else if s := strings.ToLower(side); s != "long" && s != "short" {
		errs = append(errs, FieldError{Field: "side", Message: fmt.Sprintf("invalid value %q, must be long or short", side)})
	}

	if symbol == "" {
		addMissing("symbol", "")
	} else if !symbolRe.MatchString(symbol) {
		errs = append(errs, FieldError{Field: "symbol", Message: fmt.Sprintf("invalid format %q", symbol)})
	}

	// Cornix rejects entries lacking a profit target or a stop, so require
	// both up front instead of letting the downstream bot drop the signal.
	if strings.ToLower(action) == "entry" {
		if _, present := data["size_type"]; !present {
			addMissing("size_type", " (required for entry)")
		}
		if _, present := data["size"]; !present {
			addMissing("size", " (required for entry)")
		}
		if !truthy(data["tp1"]) && !truthy(data["tp_1"]) {
			addMissing("tp1", " (at least TP1 is required for entry)")
		}
		if !truthy(data["sl"]) && !truthy(data["stop_loss"]) {
			addMissing("sl", " (stop loss is required for entry)")
		}
	}

	if sizeType != "" {
		if st := strings.ToLower(sizeType); st != "percent" && st != "usd" {
			errs = append(errs, FieldError{Field: "size_type", Message: fmt.Sprintf("invalid value %q, must be percent or usd", sizeType)})
		}
	}

	if v, present := data["size"]; present {
		if n, ok := numberValue(v); !ok || n <= 0 {
			errs = append(errs, FieldError{Field: "size", Message: fmt.Sprintf("invalid value %v, must be a positive number", v)})
		}
	}

	for _, pair := range tpFieldPairs {
		for _, field := range pair {
			v, present := data[field]
			if !present || v == nil {
				continue
			}
			if n, ok := numberValue(v); !ok || n <= 0 {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("invalid value %v, must be a positive number", v)})
			}
		}
	}

	for _, field := range []string{"sl", "stop_loss"} {
		if v, present := data[field]; present {
			if n, ok := numberValue(v); !ok || n <= 0 {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("invalid value %v, must be a positive number", v)})
			}
		}
	}

	if tag != "" && !tagRe.MatchString(tag) {
		errs = append(errs, FieldError{Field: "tag", Message: fmt.Sprintf("invalid format %q", tag)})
	}

	if strings.ToLower(action) == "tp" {
		if v, present := data["tp_number"]; present {
			if n, ok := intValue(v); !ok || n < 1 || n > 5 {
				errs = append(errs, FieldError{Field: "tp_number", Message: fmt.Sprintf("invalid value %v, must be an integer between 1 and 5", v)})
			}
		}
	}

	if v, present := data["leverage"]; present {
		if n, ok := numberValue(v); !ok || n < 1 || n > 125 {
			errs = append(errs, FieldError{Field: "leverage", Message: fmt.Sprintf("invalid value %v, must be between 1 and 125", v)})
		}
	}

	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}

	return Result{Valid: true, Signal: buildSignal(data)}
}

// buildSignal copies only the fields that were actually present; absence
// must survive to the formatter so "TP3 not supplied" stays distinct from
// "TP3 supplied as 0" (which validation already rejected).
func buildSignal(data map[string]any) *signal.Signal {
	out := &signal.Signal{
		Action: signal.Action(strings.ToLower(fieldString(data, "action"))),
		Side:   signal.Side(strings.ToLower(fieldString(data, "side"))),
		Symbol: strings.ToUpper(fieldString(data, "symbol")),
	}

	if tag := fieldString(data, "tag"); tag != "" {
		out.Tag = SanitizeTag(tag)
	}
	if st := fieldString(data, "size_type"); st != "" {
		out.SizeType = signal.SizeType(strings.ToLower(st))
	}
	if v, present := data["size"]; present {
		if n, ok := numberValue(v); ok {
			out.Size = &n
		}
	}
	if v, present := data["tp_number"]; present {
		if n, ok := intValue(v); ok {
			out.TPNumber = &n
		}
	}
	if v, present := data["leverage"]; present {
		if n, ok := numberValue(v); ok {
			out.Leverage = &n
		}
	}

	for i, pair := range tpFieldPairs {
		for _, field := range pair {
			if truthy(data[field]) {
				if n, ok := numberValue(data[field]); ok {
					out.TPs[i] = &n
					break
				}
			}
		}
	}

	if truthy(data["sl"]) {
		if n, ok := numberValue(data["sl"]); ok {
			out.StopLoss = &n
		}
	} else if truthy(data["stop_loss"]) {
		if n, ok := numberValue(data["stop_loss"]); ok {
			out.StopLoss = &n
		}
	}

	out.OriginalFormat = fieldString(data, KeyFormat)
	out.EntryType = fieldString(data, "entry_type")
	out.Exchange = fieldString(data, "exchange")
	if v, present := data["trailing_configuration"]; present {
		out.Trailing = v
	}
	return out
}

// fieldString renders a present scalar field as a string; absent or
// composite values come back empty.
func fieldString(m map[string]any, key string) string {
	v, present := m[key]
	if !present {
		return ""
	}
	return stringValue(v)
}

func numberValue(v any) (float64, bool) {
	n, ok := toFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// intValue accepts integers, integral floats, and integer strings.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
