package core

import (
	"sort"
	"time"
)

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Amount     Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month, bucketed
// by due date.
type MonthOverview struct {
	Year           int              `json:"year"`
	Month          int              `json:"month"` // 1-12
	Income         Money            `json:"income"`
	Expense        Money            `json:"expense"`
	Net            Money            `json:"net"`
	PendingIncome  Money            `json:"pendingIncome"`
	PendingExpense Money            `json:"pendingExpense"`
	Overdue        int              `json:"overdue"`
	ByCategory     []CategoryAmount `json:"byCategory"`
}

// WalletsOverview lists every wallet with totals per currency label.
type WalletsOverview struct {
	Wallets []Wallet         `json:"wallets"`
	Totals  map[string]Money `json:"totals"`
}

// MonthRange returns [first day, first day of next month).
func MonthRange(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// BuildMonthOverview aggregates transactions due in the given month.
// Executed amounts count as realized; the rest is pending.
func BuildMonthOverview(year, month int, txns []Transaction, categories []Category, now time.Time) MonthOverview {
	from, to := MonthRange(year, month)
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	ov := MonthOverview{Year: year, Month: month, ByCategory: []CategoryAmount{}}
	byCat := map[string]Money{}
	for _, t := range txns {
		if t.DueDate.Before(from) || !t.DueDate.Before(to) {
			continue
		}
		if !t.IsExecuted {
			if t.Type == Income {
				ov.PendingIncome = ov.PendingIncome.Add(t.Amount)
			} else {
				ov.PendingExpense = ov.PendingExpense.Add(t.Amount)
			}
			if t.IsOverdue(now) {
				ov.Overdue++
			}
			continue
		}
		if t.Type == Income {
			ov.Income = ov.Income.Add(t.Amount)
			continue
		}
		ov.Expense = ov.Expense.Add(t.Amount)
		byCat[t.CategoryID] = byCat[t.CategoryID].Add(t.Amount)
	}
	ov.Net = ov.Income.Sub(ov.Expense)

	for id, amt := range byCat {
		name := names[id]
		if name == "" {
			name = id
		}
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{CategoryID: id, Name: name, Amount: amt})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if c := ov.ByCategory[i].Amount.Cmp(ov.ByCategory[j].Amount); c != 0 {
			return c > 0
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})
	return ov
}

func BuildWalletsOverview(wallets []Wallet) WalletsOverview {
	ov := WalletsOverview{Wallets: wallets, Totals: map[string]Money{}}
	if ov.Wallets == nil {
		ov.Wallets = []Wallet{}
	}
	for _, w := range wallets {
		ov.Totals[w.Currency] = ov.Totals[w.Currency].Add(w.Balance)
	}
	return ov
}

// ExpectedBalance recomputes a wallet balance from its ledger: executed
// transactions plus incoming transfers minus outgoing ones.
func ExpectedBalance(walletID string, txns []Transaction, transfers []WalletTransfer) Money {
	total := Zero
	for _, t := range txns {
		if t.WalletID == walletID && t.IsExecuted {
			total = total.Add(t.SignedAmount())
		}
	}
	for _, tr := range transfers {
		if tr.ToWalletID == walletID {
			total = total.Add(tr.Amount)
		}
		if tr.FromWalletID == walletID {
			total = total.Sub(tr.Amount)
		}
	}
	return total
}
