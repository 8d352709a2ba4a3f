package ledger

import (
	"fmt"

	"github.com/example/dispute-engine/internal/disputes"
)

// Network dispute fees in the dispute currency's minor unit. Amex bills a
// higher handling fee than the other networks.
var disputeFees = map[disputes.CardBrand]int64{
	disputes.BrandVisa:       1500,
	disputes.BrandMastercard: 1500,
	disputes.BrandAmex:       2000,
	disputes.BrandDiscover:   1500,
	disputes.BrandJCB:        1500,
	disputes.BrandDiners:     1500,
	disputes.BrandUnionPay:   1500,
}

const defaultDisputeFee = 1500

// DisputeFee returns the network handling fee charged when a dispute opens.
func DisputeFee(brand disputes.CardBrand) int64 {
	if fee, ok := disputeFees[brand]; ok {
		return fee
	}
	return defaultDisputeFee
}

// CreationEntries derives the balance transactions posted when a dispute is
// opened: the disputed amount and the network fee both leave the balance.
//
// Entries are split by type, so a fee-typed entry carries the network fee as
// its gross amount and Fee stays zero; Fee is populated only when an acquirer
// nets a fee out of a gross movement. Net = Amount - Fee on every entry.
func CreationEntries(d *disputes.Dispute) []disputes.BalanceTransaction {
	return finalize([]disputes.BalanceTransaction{
		{
			ID:       disputes.NewID("txn"),
			Type:     disputes.TxnDispute,
			Amount:   -d.Amount,
			Currency: d.Currency,
			Created:  d.Created,
		},
		{
			ID:       disputes.NewID("txn"),
			Type:     disputes.TxnDisputeFee,
			Amount:   -DisputeFee(d.CardBrand()),
			Currency: d.Currency,
			Created:  d.Created,
		},
	})
}

// ResolutionEntries derives the balance transactions for a terminal outcome.
// A won dispute reverses the debit and refunds the fee, so the lifecycle
// nets to zero. A lost dispute keeps the creation entries and adds nothing.
func ResolutionEntries(d *disputes.Dispute, outcome disputes.DisputeStatus, now int64) ([]disputes.BalanceTransaction, error) {
	switch outcome {
	case disputes.StatusWon:
		return finalize([]disputes.BalanceTransaction{
			{
				ID:       disputes.NewID("txn"),
				Type:     disputes.TxnDisputeReversal,
				Amount:   d.Amount,
				Currency: d.Currency,
				Created:  now,
			},
			{
				ID:       disputes.NewID("txn"),
				Type:     disputes.TxnDisputeFeeRefund,
				Amount:   DisputeFee(d.CardBrand()),
				Currency: d.Currency,
				Created:  now,
			},
		}), nil
	case disputes.StatusLost, disputes.StatusWarningClosed:
		return nil, nil
	case disputes.StatusChargeRefunded:
		// Merchant refunded outside the dispute; the network still keeps
		// the fee, only the disputed amount comes back.
		return finalize([]disputes.BalanceTransaction{
			{
				ID:       disputes.NewID("txn"),
				Type:     disputes.TxnDisputeReversal,
				Amount:   d.Amount,
				Currency: d.Currency,
				Created:  now,
			},
		}), nil
	default:
		return nil, fmt.Errorf("status %q is not a terminal outcome", outcome)
	}
}

// finalize stamps Net on each entry. Entries are immutable after creation;
// this runs once, before the set leaves the package.
func finalize(txns []disputes.BalanceTransaction) []disputes.BalanceTransaction {
	for i := range txns {
		txns[i].Net = txns[i].Amount - txns[i].Fee
	}
	return txns
}

// NetSum adds up a transaction set. A full won lifecycle must net to zero.
func NetSum(txns []disputes.BalanceTransaction) int64 {
	var sum int64
	for _, t := range txns {
		sum += t.Amount
	}
	return sum
}
