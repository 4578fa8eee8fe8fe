// Package webhook turns raw TradingView alert payloads into validated trade
// signals. Three alert template generations are in the wild; Normalize folds
// them into one flat canonical shape so validation and formatting never
// branch on wire format.
package webhook

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Wire format tags recorded under the _original_format key.
const (
	FormatArray  = "array"
	FormatNested = "nested"
	FormatLegacy = "legacy"
)

const defaultTag = "#SFP_SL"

// MetaPrefix marks internal bookkeeping keys exempt from null/NaN pruning.
const MetaPrefix = "_"

// KeyFormat is the canonical-shape key carrying the detected wire format.
const KeyFormat = MetaPrefix + "original_format"

// detector pairs a shape predicate with its extractor. Detectors run in
// fixed priority order and the first match wins; the shapes are not
// mutually exclusive by construction, so order is load-bearing.
type detector struct {
	match   func(map[string]any) bool
	extract func(map[string]any) map[string]any
}

var detectors = []detector{
	{match: matchArrayShape, extract: extractArrayShape},
	{match: matchNestedShape, extract: extractNestedShape},
}

// Normalize rewrites any of the three known alert shapes into the
// canonical flat shape. Unrecognized payloads pass through untouched apart
// from the format tag (legacy shape is already canonical).
func Normalize(raw map[string]any) map[string]any {
	for _, d := range detectors {
		if d.match(raw) {
			out := d.extract(raw)
			pruneEmpty(out)
			return out
		}
	}

	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out[KeyFormat] = FormatLegacy
	return out
}

// Array shape: {symbol|pair, trade:{side,size,tag}, take_profit_targets:[{price}...], stop_targets:[{price}]}.
// Only ever represents a fresh entry.
func matchArrayShape(raw map[string]any) bool {
	trade, ok := asMap(raw["trade"])
	if !ok || !truthy(trade["side"]) {
		return false
	}
	_, isSeq := raw["take_profit_targets"].([]any)
	return isSeq
}

func extractArrayShape(raw map[string]any) map[string]any {
	trade, _ := asMap(raw["trade"])

	out := map[string]any{
		KeyFormat:   FormatArray,
		"action":    "entry",
		"size_type": "percent",
	}

	if sym := stringValue(raw["symbol"]); sym != "" {
		out["symbol"] = sym
	} else if pair := stringValue(raw["pair"]); pair != "" {
		out["symbol"] = strings.ReplaceAll(pair, "/", "")
	}

	if side := stringValue(trade["side"]); side != "" {
		out["side"] = strings.ToLower(side)
	} else if pos := stringValue(raw["position"]); pos != "" {
		out["side"] = strings.ToLower(pos)
	}

	if size, ok := toFloat(trade["size"]); ok && size != 0 {
		out["size"] = size
	} else {
		out["size"] = float64(1)
	}

	if tag := stringValue(trade["tag"]); tag != "" {
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		out["tag"] = tag
	} else {
		out["tag"] = defaultTag
	}

	if lev := extractLeverage(raw["leverage"]); lev != nil {
		out["leverage"] = *lev
	}

	if targets, ok := raw["take_profit_targets"].([]any); ok {
		for i := 0; i < len(targets) && i < 5; i++ {
			entry, ok := asMap(targets[i])
			if !ok {
				continue
			}
			if price, ok := toFloat(entry["price"]); ok {
				out["tp"+strconv.Itoa(i+1)] = price
			}
		}
	}

	if stops, ok := raw["stop_targets"].([]any); ok && len(stops) > 0 {
		if entry, ok := asMap(stops[0]); ok {
			if price, ok := toFloat(entry["price"]); ok {
				out["sl"] = price
			}
		}
	}

	copyMeta(out, raw, "entry", "exchange", "trailing_configuration")
	return out
}

// Nested shape: {pair, signal_type, leverage, trade_signal:{symbol,side,size,tag},
// take_profit_targets:{"1":n,...}, stop_targets:{"1":n}}. Targets are mappings
// keyed by stringified index, not sequences.
func matchNestedShape(raw map[string]any) bool {
	ts, ok := asMap(raw["trade_signal"])
	return ok && truthy(ts["symbol"])
}

func extractNestedShape(raw map[string]any) map[string]any {
	ts, _ := asMap(raw["trade_signal"])

	out := map[string]any{
		KeyFormat:   FormatNested,
		"action":    actionFromSignalType(stringValue(raw["signal_type"])),
		"size_type": "percent",
	}

	if sym := stringValue(ts["symbol"]); sym != "" {
		out["symbol"] = sym
	} else if pair := stringValue(raw["pair"]); pair != "" {
		out["symbol"] = pair
	}

	if side := stringValue(ts["side"]); side != "" {
		out["side"] = strings.ToLower(side)
	}

	if size, ok := toFloat(ts["size"]); ok && size != 0 {
		out["size"] = size
	} else if size, ok := toFloat(raw["position_size"]); ok && size != 0 {
		out["size"] = size
	}

	if tag := stringValue(ts["tag"]); tag != "" {
		out["tag"] = tag
	} else {
		out["tag"] = defaultTag
	}

	if lev := extractLeverage(raw["leverage"]); lev != nil {
		out["leverage"] = *lev
	}

	if targets, ok := asMap(raw["take_profit_targets"]); ok {
		for i := 1; i <= 5; i++ {
			if v, present := targets[strconv.Itoa(i)]; present {
				if price, ok := toFloat(v); ok {
					out["tp"+strconv.Itoa(i)] = price
				}
			}
		}
	}

	if stops, ok := asMap(raw["stop_targets"]); ok {
		if v, present := stops["1"]; present {
			if price, ok := toFloat(v); ok {
				out["sl"] = price
			}
		}
	}

	copyMeta(out, raw, "entry_type", "exchange", "trailing_configuration")
	return out
}

// actionFromSignalType maps free-text signal types like "Regular (Long)" or
// "Stop Loss Hit" onto canonical actions by substring match.
func actionFromSignalType(signalType string) string {
	if signalType == "" {
		return "entry"
	}
	lower := strings.ToLower(signalType)
	switch {
	case strings.Contains(lower, "long") || strings.Contains(lower, "short"):
		return "entry"
	case strings.Contains(lower, "stop") || strings.Contains(lower, "sl"):
		return "sl"
	case strings.Contains(lower, "take") || strings.Contains(lower, "tp"):
		return "tp"
	default:
		return "entry"
	}
}

var digitsRe = regexp.MustCompile(`\d+`)

// extractLeverage pulls a numeric leverage out of the formats alerts use:
// a plain number, a string like "Isolated (10X)", or an object
// {type: "Isolated", value: "10X"}.
func extractLeverage(v any) *float64 {
	switch lev := v.(type) {
	case nil:
		return nil
	case float64:
		if lev == 0 {
			return nil
		}
		return &lev
	case int:
		f := float64(lev)
		if f == 0 {
			return nil
		}
		return &f
	case string:
		return leverageFromString(lev)
	case map[string]any:
		if value, ok := lev["value"]; ok {
			return leverageFromString(stringValue(value))
		}
	}
	return nil
}

func leverageFromString(s string) *float64 {
	match := digitsRe.FindString(s)
	if match == "" {
		return nil
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &n
}

// pruneEmpty drops nil and NaN values so downstream code never sees
// sentinel numbers. Internal metadata keys are exempt.
func pruneEmpty(m map[string]any) {
	for k, v := range m {
		if strings.HasPrefix(k, MetaPrefix) {
			continue
		}
		if v == nil {
			delete(m, k)
			continue
		}
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			delete(m, k)
		}
	}
}

func copyMeta(dst, src map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok && v != nil {
			dst[k] = v
		}
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// stringValue renders scalar JSON values as strings; nil and composites
// come back empty.
func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// toFloat parses JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truthy mirrors the presence checks alert templates rely on: empty
// strings, zeros, and nil all count as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case bool:
		return t
	default:
		return true
	}
}
