package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/pkg/money"
)

// TopN is how many records per kind the condensed display shows.
const TopN = 5

// Summary is the settlement aggregate for one chat's period, always
// recomputed from the transaction log and never persisted.
type Summary struct {
	ChatID        int64           `json:"chat_id"`
	ShouldSend    decimal.Decimal `json:"should_send"`
	Sent          decimal.Decimal `json:"sent"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Deposits      []*Transaction  `json:"deposits"`
	Withdrawals   []*Transaction  `json:"withdrawals"`
	Disbursements []*Transaction  `json:"disbursements"`
	ByOperator    []OperatorStats `json:"by_operator"`
}

// Clip returns a copy whose per-kind lists hold at most n records each,
// for the condensed display. The aggregate figures are unchanged.
func (s *Summary) Clip(n int) *Summary {
	clipped := *s
	clipped.Deposits = head(s.Deposits, n)
	clipped.Withdrawals = head(s.Withdrawals, n)
	clipped.Disbursements = head(s.Disbursements, n)
	return &clipped
}

func head(txs []*Transaction, n int) []*Transaction {
	if len(txs) <= n {
		return txs
	}
	return txs[:n]
}

// BuildSummary aggregates a period-scoped transaction list, in insertion
// order, into the settlement figures:
//
//	should_send = trunc2(Σ deposit converted)
//	sent        = round2(Σ withdrawal converted + Σ disbursement converted)
//	outstanding = trunc2(should_send - sent)
//
// Disbursement contributions carry their stored sign, so retractions
// subtract.
func BuildSummary(chatID int64, txs []*Transaction) *Summary {
	s := &Summary{
		ChatID:        chatID,
		Deposits:      []*Transaction{},
		Withdrawals:   []*Transaction{},
		Disbursements: []*Transaction{},
	}

	depositSum := decimal.Zero
	sentSum := decimal.Zero
	byOp := make(map[int64]*OperatorStats)

	for _, tx := range txs {
		op, ok := byOp[tx.OperatorID]
		if !ok {
			op = &OperatorStats{OperatorID: tx.OperatorID, OperatorName: tx.OperatorName}
			byOp[tx.OperatorID] = op
		}

		switch tx.Kind {
		case KindDeposit:
			s.Deposits = append(s.Deposits, tx)
			depositSum = depositSum.Add(tx.Converted)
			op.DepositCount++
			op.DepositAmount = op.DepositAmount.Add(tx.Converted)
		case KindWithdrawal:
			s.Withdrawals = append(s.Withdrawals, tx)
			sentSum = sentSum.Add(tx.Converted)
			op.WithdrawalCount++
			op.WithdrawalAmount = op.WithdrawalAmount.Add(tx.Converted)
		case KindDisbursement:
			s.Disbursements = append(s.Disbursements, tx)
			sentSum = sentSum.Add(tx.Converted)
			op.DisbursementCount++
			op.DisbursementAmount = op.DisbursementAmount.Add(tx.Converted)
		}
	}

	s.ShouldSend = money.Trunc2(depositSum)
	s.Sent = money.Round2(sentSum)
	s.Outstanding = money.Trunc2(s.ShouldSend.Sub(s.Sent))

	s.ByOperator = make([]OperatorStats, 0, len(byOp))
	for _, op := range byOp {
		s.ByOperator = append(s.ByOperator, *op)
	}
	sort.Slice(s.ByOperator, func(i, j int) bool {
		return s.ByOperator[i].OperatorID < s.ByOperator[j].OperatorID
	})

	return s
}

// buildResetStats groups removed records into per-kind counts and sums.
func buildResetStats(removed []*Transaction) *ResetStats {
	stats := &ResetStats{
		Deposit:      KindStats{Amount: decimal.Zero},
		Withdrawal:   KindStats{Amount: decimal.Zero},
		Disbursement: KindStats{Amount: decimal.Zero},
	}

	for _, tx := range removed {
		switch tx.Kind {
		case KindDeposit:
			stats.Deposit.Count++
			stats.Deposit.Amount = stats.Deposit.Amount.Add(tx.Converted)
		case KindWithdrawal:
			stats.Withdrawal.Count++
			stats.Withdrawal.Amount = stats.Withdrawal.Amount.Add(tx.Converted)
		case KindDisbursement:
			stats.Disbursement.Count++
			stats.Disbursement.Amount = stats.Disbursement.Amount.Add(tx.Converted)
		}
	}

	return stats
}
