// Package route dispatches validated signals to their formatter and the
// messaging transport. No business logic lives here beyond
// action-to-formatter dispatch; formatter and transport failures
// propagate unchanged.
package route

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tvcornix-go/internal/cornix"
	"tvcornix-go/internal/signal"
	"tvcornix-go/internal/telegram"
)

// Sender is the messaging collaborator each handler relays through.
type Sender interface {
	SendCornixCommand(ctx context.Context, command string, sig *signal.Signal) (*telegram.Message, error)
}

// Result is what the HTTP boundary reports back per routed webhook.
type Result struct {
	Action        signal.Action `json:"action"`
	CornixCommand string        `json:"cornixCommand"`
	Symbol        string        `json:"symbol"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Router owns the action dispatch table.
type Router struct {
	sender Sender
	log    zerolog.Logger
}

// NewRouter wires the messaging transport into the dispatcher.
func NewRouter(sender Sender, log zerolog.Logger) *Router {
	return &Router{sender: sender, log: log}
}

// Handle formats and relays one validated signal.
func (r *Router) Handle(ctx context.Context, sig *signal.Signal) (Result, error) {
	switch sig.Action {
	case signal.ActionEntry:
		return r.relay(ctx, sig, cornix.FormatEntryCommand, "processing entry signal")
	case signal.ActionSL:
		return r.relay(ctx, sig, cornix.FormatSLCommand, "processing stop-loss signal")
	case signal.ActionTP:
		return r.relay(ctx, sig, cornix.FormatTPCommand, "processing take-profit signal")
	default:
		return Result{}, fmt.Errorf("unsupported action: %s", sig.Action)
	}
}

func (r *Router) relay(ctx context.Context, sig *signal.Signal, format func(*signal.Signal) (string, error), intent string) (Result, error) {
	r.log.Info().Str("symbol", sig.Symbol).Str("side", string(sig.Side)).Msg(intent)

	command, err := format(sig)
	if err != nil {
		return Result{}, err
	}
	msg, err := r.sender.SendCornixCommand(ctx, command, sig)
	if err != nil {
		return Result{}, err
	}

	r.log.Info().Str("symbol", sig.Symbol).Str("action", string(sig.Action)).Str("command", command).Int64("message_id", msg.MessageID).Msg("signal relayed")
	return Result{
		Action:        sig.Action,
		CornixCommand: command,
		Symbol:        sig.Symbol,
		Timestamp:     time.Now().UTC(),
	}, nil
}
