package handler

import (
	"time"

	"github.com/tallyops/settlebook/internal/ledger"
)

// RecordView is the outward record schema served to the statistics
// surfaces. Amounts travel as strings to keep decimal precision intact
// in JSON.
type RecordView struct {
	ID              int64     `json:"id"`
	Time            string    `json:"time"`
	Kind            string    `json:"kind"`
	RawAmount       string    `json:"raw_amount"`
	FeeRate         string    `json:"fee_rate"`
	ExchangeRate    string    `json:"exchange_rate"`
	ConvertedAmount string    `json:"converted_amount"`
	Tag             string    `json:"tag"`
	OperatorName    string    `json:"operator_name"`
	ExternalRef     *string   `json:"external_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SummaryView is the settlement aggregate plus per-kind record lists.
type SummaryView struct {
	ChatID        int64                  `json:"chat_id"`
	ShouldSend    string                 `json:"should_send"`
	Sent          string                 `json:"sent"`
	Outstanding   string                 `json:"outstanding"`
	Deposits      []RecordView           `json:"deposits"`
	Withdrawals   []RecordView           `json:"withdrawals"`
	Disbursements []RecordView           `json:"disbursements"`
	ByOperator    []ledger.OperatorStats `json:"by_operator"`
}

func toRecordView(tx *ledger.Transaction, loc *time.Location) RecordView {
	return RecordView{
		ID:              tx.ID,
		Time:            tx.CreatedAt.In(loc).Format("15:04:05"),
		Kind:            string(tx.Kind),
		RawAmount:       tx.RawAmount.String(),
		FeeRate:         tx.Rate.String(),
		ExchangeRate:    tx.FX.String(),
		ConvertedAmount: tx.Converted.String(),
		Tag:             tx.Tag,
		OperatorName:    tx.OperatorName,
		ExternalRef:     tx.ExternalRef,
		CreatedAt:       tx.CreatedAt,
	}
}

func toRecordViews(txs []*ledger.Transaction, loc *time.Location) []RecordView {
	views := make([]RecordView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toRecordView(tx, loc))
	}
	return views
}

func toSummaryView(s *ledger.Summary, loc *time.Location) SummaryView {
	return SummaryView{
		ChatID:        s.ChatID,
		ShouldSend:    s.ShouldSend.StringFixed(2),
		Sent:          s.Sent.StringFixed(2),
		Outstanding:   s.Outstanding.StringFixed(2),
		Deposits:      toRecordViews(s.Deposits, loc),
		Withdrawals:   toRecordViews(s.Withdrawals, loc),
		Disbursements: toRecordViews(s.Disbursements, loc),
		ByOperator:    s.ByOperator,
	}
}

// periodStart is the local-midnight instant opening the current
// accounting period. The engine itself stays timezone-agnostic; this is
// where the configured timezone is applied.
func periodStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
