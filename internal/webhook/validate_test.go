package webhook

import (
	"strings"
	"testing"

	"tvcornix-go/internal/signal"
)

func fieldsOf(errs []FieldError) map[string]int {
	out := map[string]int{}
	for _, e := range errs {
		out[e.Field]++
	}
	return out
}

func TestValidateAcceptsLegacyEntry(t *testing.T) {
	result := Validate(decodePayload(t, legacyPayload))
	if !result.Valid {
		t.Fatalf("expected valid result, got errors %v", result.Errors)
	}

	sig := result.Signal
	if sig.Action != signal.ActionEntry || sig.Side != signal.SideLong {
		t.Fatalf("unexpected action/side: %s/%s", sig.Action, sig.Side)
	}
	if sig.Symbol != "BTCUSDT" {
		t.Fatalf("expected uppercased symbol, got %s", sig.Symbol)
	}
	if sig.Tag != "#SFP_SL" {
		t.Fatalf("expected sanitized tag, got %s", sig.Tag)
	}
	if sig.Size == nil || *sig.Size != 2.5 {
		t.Fatalf("expected size 2.5, got %v", sig.Size)
	}
	if sig.Leverage == nil || *sig.Leverage != 10 {
		t.Fatalf("expected leverage 10, got %v", sig.Leverage)
	}
	if sig.TP(1) == nil || *sig.TP(1) != 93000 {
		t.Fatalf("expected tp1 93000, got %v", sig.TP(1))
	}
	if sig.TP(4) != nil || sig.TP(5) != nil {
		t.Fatalf("unsupplied targets must stay nil")
	}
	if sig.StopLoss == nil || *sig.StopLoss != 87000 {
		t.Fatalf("expected stop loss 87000, got %v", sig.StopLoss)
	}
	if sig.OriginalFormat != FormatLegacy {
		t.Fatalf("expected legacy format tag, got %s", sig.OriginalFormat)
	}
}

// Every violated rule must surface in one pass; nothing short-circuits.
func TestValidateCollectsAllErrors(t *testing.T) {
	result := Validate(map[string]any{
		"action":    "entry",
		"symbol":    "BTCUSDT",
		"size_type": "percent",
	})
	if result.Valid {
		t.Fatalf("expected invalid result")
	}
	fields := fieldsOf(result.Errors)
	for _, want := range []string{"side", "size", "tp1", "sl"} {
		if fields[want] == 0 {
			t.Fatalf("expected an error for %s, got %v", want, result.Errors)
		}
	}
	if len(result.Errors) < 4 {
		t.Fatalf("expected at least 4 distinct errors, got %d", len(result.Errors))
	}
}

func TestValidateEntryRequiresTargetAndStop(t *testing.T) {
	base := map[string]any{
		"action":    "entry",
		"side":      "long",
		"symbol":    "BTCUSDT",
		"size_type": "percent",
		"size":      1.0,
	}

	withTP := map[string]any{"tp1": 92000.0}
	for k, v := range base {
		withTP[k] = v
	}
	result := Validate(withTP)
	if result.Valid {
		t.Fatalf("entry without sl must be rejected")
	}
	if fieldsOf(result.Errors)["sl"] == 0 {
		t.Fatalf("expected an sl error, got %v", result.Errors)
	}

	withSL := map[string]any{"sl": 88000.0}
	for k, v := range base {
		withSL[k] = v
	}
	result = Validate(withSL)
	if result.Valid {
		t.Fatalf("entry without tp1 must be rejected")
	}
	if fieldsOf(result.Errors)["tp1"] == 0 {
		t.Fatalf("expected a tp1 error, got %v", result.Errors)
	}
}

func TestValidateFieldRules(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"bad action", map[string]any{"action": "buy", "side": "long", "symbol": "BTCUSDT"}, "action"},
		{"bad side", map[string]any{"action": "sl", "side": "up", "symbol": "BTCUSDT"}, "side"},
		{"bad symbol", map[string]any{"action": "sl", "side": "long", "symbol": "BTC USDT!"}, "symbol"},
		{"bad size_type", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "size_type": "lots"}, "size_type"},
		{"zero tp", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "tp2": 0.0}, "tp2"},
		{"negative sl", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "sl": -5.0}, "sl"},
		{"bad stop_loss", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "stop_loss": "abc"}, "stop_loss"},
		{"bad tag", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "tag": "bad/tag"}, "tag"},
		{"tp_number too high", map[string]any{"action": "tp", "side": "long", "symbol": "BTCUSDT", "tp_number": 6.0}, "tp_number"},
		{"tp_number fractional", map[string]any{"action": "tp", "side": "long", "symbol": "BTCUSDT", "tp_number": 2.5}, "tp_number"},
		{"leverage too high", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "leverage": 200.0}, "leverage"},
		{"leverage below one", map[string]any{"action": "sl", "side": "long", "symbol": "BTCUSDT", "leverage": 0.5}, "leverage"},
	}
	for _, tc := range cases {
		result := Validate(tc.payload)
		if result.Valid {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if fieldsOf(result.Errors)[tc.field] == 0 {
			t.Fatalf("%s: expected an error on %s, got %v", tc.name, tc.field, result.Errors)
		}
	}
}

func TestValidateAcceptsSparseNonEntry(t *testing.T) {
	// SL and TP signals carry no sizing; only entry demands targets.
	result := Validate(map[string]any{
		"action": "sl",
		"side":   "long",
		"symbol": "BYBIT:BTCUSDT.P",
		"tag":    "SFP_SL",
	})
	if !result.Valid {
		t.Fatalf("expected valid sl signal, got %v", result.Errors)
	}
	if result.Signal.Tag != "#SFP_SL" {
		t.Fatalf("expected re-prefixed tag, got %s", result.Signal.Tag)
	}
	if result.Signal.Size != nil || result.Signal.StopLoss != nil {
		t.Fatalf("absent optionals must stay nil")
	}
}

func TestValidateAlternativeFieldNames(t *testing.T) {
	result := Validate(map[string]any{
		"action":    "entry",
		"side":      "long",
		"symbol":    "BTCUSDT",
		"size_type": "usd",
		"size":      100.0,
		"tp_1":      93000.0,
		"tp_2":      94000.0,
		"stop_loss": 87000.0,
	})
	if !result.Valid {
		t.Fatalf("expected tp_1/stop_loss naming to validate, got %v", result.Errors)
	}
	if result.Signal.TP(1) == nil || *result.Signal.TP(1) != 93000 {
		t.Fatalf("expected tp_1 mapped to TP1, got %v", result.Signal.TP(1))
	}
	if result.Signal.StopLoss == nil || *result.Signal.StopLoss != 87000 {
		t.Fatalf("expected stop_loss mapped, got %v", result.Signal.StopLoss)
	}
}

func TestValidateStringNumbers(t *testing.T) {
	result := Validate(map[string]any{
		"action":    "entry",
		"side":      "short",
		"symbol":    "ethusdt",
		"size_type": "percent",
		"size":      "1.5",
		"tp1":       "3000",
		"sl":        "3300",
	})
	if !result.Valid {
		t.Fatalf("expected numeric strings to coerce, got %v", result.Errors)
	}
	if result.Signal.Symbol != "ETHUSDT" {
		t.Fatalf("expected uppercased symbol, got %s", result.Signal.Symbol)
	}
	if result.Signal.Size == nil || *result.Signal.Size != 1.5 {
		t.Fatalf("expected size 1.5, got %v", result.Signal.Size)
	}
}

func TestSanitizeTag(t *testing.T) {
	cases := map[string]string{
		"nr.3 short": "#NR.3 SHORT",
		"#SFP_SL":    "#SFP_SL",
		"sfp_sl":     "#SFP_SL",
		"##double":   "#DOUBLE",
	}
	for in, want := range cases {
		if got := SanitizeTag(in); got != want {
			t.Fatalf("SanitizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("secret-token", "secret-token") {
		t.Fatalf("identical tokens must match")
	}
	if SecureCompare("secret-tokex", "secret-token") {
		t.Fatalf("single character difference must fail")
	}
	if SecureCompare("short", "secret-token") {
		t.Fatalf("length mismatch must fail")
	}
	if SecureCompare("", "secret-token") || SecureCompare("secret-token", "") || SecureCompare("", "") {
		t.Fatalf("empty secret on either side must fail closed")
	}
}

func TestFieldErrorString(t *testing.T) {
	err := FieldError{Field: "tp1", Message: "missing required field"}
	if !strings.Contains(err.String(), "tp1") {
		t.Fatalf("error string must name the field: %s", err.String())
	}
}
