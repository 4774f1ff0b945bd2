package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildMonthOverview(t *testing.T) {
	now := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	day := func(m, d int) time.Time { return time.Date(2025, time.Month(m), d, 0, 0, 0, 0, time.UTC) }
	cats := []Category{{ID: "food", Name: "Food"}, {ID: "rent", Name: "Rent"}}
	txns := []Transaction{
		{Type: Income, Amount: MustMoney("1000"), DueDate: day(4, 1), IsExecuted: true},
		{Type: Expense, CategoryID: "rent", Amount: MustMoney("600"), DueDate: day(4, 5), IsExecuted: true},
		{Type: Expense, CategoryID: "food", Amount: MustMoney("120.50"), DueDate: day(4, 7), IsExecuted: true},
		{Type: Expense, CategoryID: "food", Amount: MustMoney("30"), DueDate: day(4, 10), IsExecuted: true},
		{Type: Expense, CategoryID: "food", Amount: MustMoney("45"), DueDate: day(4, 12)},
		{Type: Income, Amount: MustMoney("200"), DueDate: day(4, 28)},
		{Type: Expense, CategoryID: "food", Amount: MustMoney("999"), DueDate: day(5, 1), IsExecuted: true},
	}

	ov := BuildMonthOverview(2025, 4, txns, cats, now)

	assert.Equal(t, "1000.00", ov.Income.String())
	assert.Equal(t, "750.50", ov.Expense.String())
	assert.Equal(t, "249.50", ov.Net.String())
	assert.Equal(t, "45.00", ov.PendingExpense.String())
	assert.Equal(t, "200.00", ov.PendingIncome.String())
	assert.Equal(t, 1, ov.Overdue)
	if assert.Len(t, ov.ByCategory, 2) {
		assert.Equal(t, "Rent", ov.ByCategory[0].Name)
		assert.Equal(t, "Food", ov.ByCategory[1].Name)
		assert.Equal(t, "150.50", ov.ByCategory[1].Amount.String())
	}
}

func TestExpectedBalance(t *testing.T) {
	txns := []Transaction{
		{WalletID: "a", Type: Income, Amount: MustMoney("100"), IsExecuted: true},
		{WalletID: "a", Type: Expense, Amount: MustMoney("30"), IsExecuted: true},
		{WalletID: "a", Type: Expense, Amount: MustMoney("500")},
		{WalletID: "b", Type: Income, Amount: MustMoney("10"), IsExecuted: true},
	}
	transfers := []WalletTransfer{
		{FromWalletID: "a", ToWalletID: "b", Amount: MustMoney("20")},
		{FromWalletID: "b", ToWalletID: "a", Amount: MustMoney("5")},
	}
	assert.Equal(t, "55.00", ExpectedBalance("a", txns, transfers).String())
	assert.Equal(t, "25.00", ExpectedBalance("b", txns, transfers).String())
}

func TestBuildWalletsOverview(t *testing.T) {
	ov := BuildWalletsOverview([]Wallet{
		{Currency: "BRL", Balance: MustMoney("10")},
		{Currency: "BRL", Balance: MustMoney("-2.5")},
		{Currency: "USD", Balance: MustMoney("3")},
	})
	assert.Equal(t, "7.50", ov.Totals["BRL"].String())
	assert.Equal(t, "3.00", ov.Totals["USD"].String())
	assert.Empty(t, BuildWalletsOverview(nil).Wallets)
}
