package telegram

import (
	"fmt"
	"strings"
	"time"

	"tvcornix-go/internal/signal"
)

const divider = "═══════════════════════════"

// TradeMessage decorates a Cornix command with the signal context so the
// channel shows what fired, while the command block stays copy-pasteable
// for Cornix itself.
func TradeMessage(command string, sig *signal.Signal) string {
	var b strings.Builder
	b.WriteString("🚀 *TRADE SIGNAL EXECUTED*\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "*Symbol:* `%s`\n", sig.Symbol)
	fmt.Fprintf(&b, "*Action:* `%s`\n", strings.ToUpper(string(sig.Action)))
	fmt.Fprintf(&b, "*Side:* `%s`\n", strings.ToUpper(string(sig.Side)))
	if sig.Size != nil {
		fmt.Fprintf(&b, "*Size:* `%s`\n", sizeLabel(*sig.Size, sig.SizeType))
	}
	if sig.Tag != "" {
		fmt.Fprintf(&b, "*Tag:* `%s`\n", sig.Tag)
	}
	b.WriteString(divider + "\n")
	b.WriteString("*Cornix Command:*\n")
	b.WriteString("```\n")
	b.WriteString(command)
	b.WriteString("\n```\n")
	fmt.Fprintf(&b, "*Timestamp:* %s", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

func sizeLabel(size float64, sizeType signal.SizeType) string {
	unit := "USD"
	if sizeType == signal.SizePercent {
		unit = "%"
	}
	return fmt.Sprintf("%g%s", size, unit)
}
