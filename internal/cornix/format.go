// Package cornix renders validated signals into the text command syntax
// the Cornix Telegram bot parses as trading instructions.
package cornix

import (
	"fmt"
	"strconv"
	"strings"

	"tvcornix-go/internal/signal"
)

// ParseSymbol derives the clean ticker Cornix expects from a TradingView
// symbol: the exchange prefix ("BYBIT:") and a perpetual-contract suffix
// (".P") are stripped and the result uppercased. Total over any input.
func ParseSymbol(symbol string) string {
	if idx := strings.LastIndex(symbol, ":"); idx >= 0 {
		symbol = symbol[idx+1:]
	}
	upper := strings.ToUpper(symbol)
	return strings.TrimSuffix(upper, ".P")
}

// FormatEntryCommand emits the multi-line signal block for a new position.
// Line order is fixed: Cornix parses labeled lines position-independently
// but readers expect Pair/Action/Entry ahead of the targets. Only targets
// actually supplied produce lines; there are no placeholders.
func FormatEntryCommand(sig *signal.Signal) (string, error) {
	if err := checkContract(sig); err != nil {
		return "", err
	}

	var lines []string
	if sig.Tag != "" {
		lines = append(lines, sig.Tag)
	}
	lines = append(lines,
		"Pair: "+ParseSymbol(sig.Symbol),
		"Action: "+capitalize(string(sig.Side)),
	)
	if sig.Leverage != nil {
		lines = append(lines, "Leverage: "+formatNumber(*sig.Leverage)+"x")
	}
	lines = append(lines, "Entry: Market")
	for i := 1; i <= signal.MaxTargets; i++ {
		if tp := sig.TP(i); tp != nil {
			lines = append(lines, fmt.Sprintf("TP%d: %s", i, formatNumber(*tp)))
		}
	}
	if sig.StopLoss != nil {
		lines = append(lines, "Stop Loss: "+formatNumber(*sig.StopLoss))
	}
	return strings.Join(lines, "\n"), nil
}

// FormatSLCommand emits the close-position instruction. In this domain a
// stop-loss signal means "exit the open position": the upstream strategy
// manages its own stop logic and only notifies on breach.
func FormatSLCommand(sig *signal.Signal) (string, error) {
	if err := checkContract(sig); err != nil {
		return "", err
	}
	return "/close " + ParseSymbol(sig.Symbol) + tagSuffix(sig), nil
}

// FormatTPCommand emits the take-profit trigger referencing a previously
// communicated target index rather than a price. An omitted index means
// the first target.
func FormatTPCommand(sig *signal.Signal) (string, error) {
	if err := checkContract(sig); err != nil {
		return "", err
	}
	number := 1
	if sig.TPNumber != nil {
		number = *sig.TPNumber
	}
	return fmt.Sprintf("/tp %s %d%s", ParseSymbol(sig.Symbol), number, tagSuffix(sig)), nil
}

// FormatCommand dispatches on the signal action.
func FormatCommand(sig *signal.Signal) (string, error) {
	switch sig.Action {
	case signal.ActionEntry:
		return FormatEntryCommand(sig)
	case signal.ActionSL:
		return FormatSLCommand(sig)
	case signal.ActionTP:
		return FormatTPCommand(sig)
	default:
		return "", fmt.Errorf("unknown action: %s", sig.Action)
	}
}

// checkContract guards fields the validator guarantees. A failure here is
// a programming error upstream, not bad user input, so it propagates.
func checkContract(sig *signal.Signal) error {
	if sig == nil {
		return fmt.Errorf("nil signal")
	}
	if sig.Symbol == "" {
		return fmt.Errorf("signal missing symbol")
	}
	if sig.Side == "" {
		return fmt.Errorf("signal missing side")
	}
	return nil
}

func tagSuffix(sig *signal.Signal) string {
	if sig.Tag == "" {
		return ""
	}
	return " " + sig.Tag
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatNumber renders prices the way alerts carry them: no exponent, no
// trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
