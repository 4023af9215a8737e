// Package command turns raw operator text into an explicit parse
// result. Free-form chat that matches nothing is simply not a command;
// the ledger engine is only invoked once parsing has succeeded.
package command

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/internal/ledger"
)

// Command is the parse-result sum type. Exactly one concrete type is
// returned per recognized input.
type Command interface {
	isCommand()
}

// Deposit records inbound money: "+100" or "+100 / jp".
type Deposit struct {
	Amount decimal.Decimal
	Tag    string
}

// Withdrawal records outbound money: "-250.5" or "-250.5 / us".
type Withdrawal struct {
	Amount decimal.Decimal
	Tag    string
}

// Payout records a signed direct disbursement: "payout 35.04" sends,
// "payout -35.04" retracts.
type Payout struct {
	Amount decimal.Decimal
}

// ShowSummary requests the settlement display; Full switches from the
// condensed top-lists view to the complete log.
type ShowSummary struct {
	Full bool
}

// Undo asks to delete the transaction referenced by the replied-to
// message. The reference itself is resolved by the transport.
type Undo struct{}

// ClearPeriod deletes the current period's records.
type ClearPeriod struct{}

// ResetDefaults restores the canonical quick-setup rates.
type ResetDefaults struct{}

// SetRates carries a partial rate-configuration update.
type SetRates struct {
	Patch ledger.ConfigPatch
}

// Help requests the usage text.
type Help struct{}

func (Deposit) isCommand()       {}
func (Withdrawal) isCommand()    {}
func (Payout) isCommand()        {}
func (ShowSummary) isCommand()   {}
func (Undo) isCommand()          {}
func (ClearPeriod) isCommand()   {}
func (ResetDefaults) isCommand() {}
func (SetRates) isCommand()      {}
func (Help) isCommand()          {}

// Parse recognizes an operator command in text. The second return is
// false when text is ordinary conversation, including inputs that look
// command-shaped but carry an unparseable amount.
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	switch strings.ToLower(text) {
	case "summary", "bill":
		return ShowSummary{}, true
	case "full summary", "full bill":
		return ShowSummary{Full: true}, true
	case "undo":
		return Undo{}, true
	case "clear", "clear today":
		return ClearPeriod{}, true
	case "reset defaults":
		return ResetDefaults{}, true
	case "help":
		return Help{}, true
	}

	if amount, tag, ok := parseAmount(text, "+"); ok {
		return Deposit{Amount: amount, Tag: tag}, true
	}
	if amount, tag, ok := parseAmount(text, "-"); ok {
		return Withdrawal{Amount: amount, Tag: tag}, true
	}

	lower := strings.ToLower(text)
	if rest, ok := strings.CutPrefix(lower, "payout "); ok {
		amount, err := decimal.NewFromString(strings.TrimSpace(rest))
		if err != nil || amount.Sign() == 0 {
			return nil, false
		}
		return Payout{Amount: amount}, true
	}

	if cmd, ok := parseSetRate(lower); ok {
		return cmd, true
	}

	return nil, false
}

// parseAmount handles the "<sign><amount> [/ tag]" form. The sign must
// be the first byte; the optional tag follows a slash.
func parseAmount(text, sign string) (decimal.Decimal, string, bool) {
	rest, ok := strings.CutPrefix(text, sign)
	if !ok {
		return decimal.Decimal{}, "", false
	}

	var tag string
	if idx := strings.Index(rest, "/"); idx >= 0 {
		tag = strings.TrimSpace(rest[idx+1:])
		rest = rest[:idx]
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(rest))
	if err != nil || amount.Sign() <= 0 {
		return decimal.Decimal{}, "", false
	}

	return amount, tag, true
}

// parseSetRate handles the four "set <side> <field> <value>" forms, e.g.
// "set deposit rate 10%" or "set withdrawal fx 137".
func parseSetRate(lower string) (Command, bool) {
	rest, ok := strings.CutPrefix(lower, "set ")
	if !ok {
		return nil, false
	}

	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return nil, false
	}
	side, field, value := fields[0], fields[1], fields[2]

	var patch ledger.ConfigPatch
	switch {
	case side == "deposit" && field == "rate":
		rate, ok := parsePercent(value)
		if !ok {
			return nil, false
		}
		patch.DepositRate = &rate
	case side == "deposit" && field == "fx":
		fx, err := decimal.NewFromString(value)
		if err != nil || fx.Sign() <= 0 {
			return nil, false
		}
		patch.DepositFX = &fx
	case side == "withdrawal" && field == "rate":
		rate, ok := parsePercent(value)
		if !ok {
			return nil, false
		}
		patch.WithdrawalRate = &rate
	case side == "withdrawal" && field == "fx":
		fx, err := decimal.NewFromString(value)
		if err != nil || fx.Sign() <= 0 {
			return nil, false
		}
		patch.WithdrawalFX = &fx
	default:
		return nil, false
	}

	return SetRates{Patch: patch}, true
}

var percentDivisor = decimal.NewFromInt(100)

// parsePercent accepts "10%" or a bare fraction like "0.10".
func parsePercent(value string) (decimal.Decimal, bool) {
	if pct, ok := strings.CutSuffix(value, "%"); ok {
		d, err := decimal.NewFromString(pct)
		if err != nil || d.Sign() < 0 {
			return decimal.Decimal{}, false
		}
		return d.Div(percentDivisor), true
	}

	d, err := decimal.NewFromString(value)
	if err != nil || d.Sign() < 0 || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, false
	}
	return d, true
}
