package payments

import (
	"sort"

	"github.com/warp/ops-console/core"
)

// Match compares settled transactions with settlement lines by provider reference.
// Lines sharing a reference are summed first; providers split large settlements.
// Transactions that never settled (pending, failed, voided) are ignored.
func Match(txs []Transaction, lines []SettlementLine) ReconciliationRun {
	run := ReconciliationRun{
		InternalTotal: core.ZeroMoney(core.DefaultCurrency),
		ProviderTotal: core.ZeroMoney(core.DefaultCurrency),
	}

	reported := make(map[string]core.Money, len(lines))
	var refs []string
	for _, l := range lines {
		run.ProviderTotal = run.ProviderTotal.Add(l.Amount)
		if cur, ok := reported[l.ProviderRef]; ok {
			reported[l.ProviderRef] = cur.Add(l.Amount)
			continue
		}
		reported[l.ProviderRef] = l.Amount
		refs = append(refs, l.ProviderRef)
	}

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if !tx.Status.Settled() {
			continue
		}
		run.InternalTotal = run.InternalTotal.Add(tx.Amount)

		amount, ok := reported[tx.ProviderRef]
		if tx.ProviderRef == "" || !ok {
			run.MissingProvider++
			run.Discrepancies = append(run.Discrepancies, Discrepancy{
				Kind:           MissingProvider,
				ProviderRef:    tx.ProviderRef,
				TransactionID:  tx.ID,
				InternalAmount: tx.Amount.Amount.StringFixed(2),
			})
			continue
		}
		seen[tx.ProviderRef] = true

		if !amount.Equal(tx.Amount) {
			run.Mismatched++
			run.Discrepancies = append(run.Discrepancies, Discrepancy{
				Kind:           AmountMismatch,
				ProviderRef:    tx.ProviderRef,
				TransactionID:  tx.ID,
				InternalAmount: tx.Amount.Amount.StringFixed(2),
				ProviderAmount: amount.Amount.StringFixed(2),
			})
			continue
		}
		run.Matched++
	}

	sort.Strings(refs)
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		run.MissingInternal++
		run.Discrepancies = append(run.Discrepancies, Discrepancy{
			Kind:           MissingInternal,
			ProviderRef:    ref,
			ProviderAmount: reported[ref].Amount.StringFixed(2),
		})
	}
	return run
}
