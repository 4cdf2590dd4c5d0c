package rules

import (
	"fmt"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// Account types of the chart of accounts.
const (
	AccountAsset     = "asset"
	AccountLiability = "liability"
	AccountEquity    = "equity"
	AccountIncome    = "income"
	AccountExpense   = "expense"
)

// ChartEntry is one account in the YAML chart.
type ChartEntry struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// ChartOfAccounts groups accounts by type the way the YAML file lays them out.
type ChartOfAccounts struct {
	Assets      []ChartEntry `yaml:"assets"`
	Liabilities []ChartEntry `yaml:"liabilities"`
	Equity      []ChartEntry `yaml:"equity"`
	Income      []ChartEntry `yaml:"income"`
	Expenses    []ChartEntry `yaml:"expenses"`
}

// DefaultChart is the chart used when the rule file does not define one. It
// matches config/audit-rules.yaml. A file section replaces the default
// section of the same account type.
func DefaultChart() ChartOfAccounts {
	return ChartOfAccounts{
		Assets: []ChartEntry{
			{Code: "1001-01", Name: "Cash"},
			{Code: "1002-01", Name: "Bank deposits"},
		},
		Liabilities: []ChartEntry{
			{Code: "2202", Name: "Accounts payable"},
		},
		Equity: []ChartEntry{
			{Code: "3001-01", Name: "Capital stock"},
		},
		Income: []ChartEntry{
			{Code: "4001-01", Name: "Sales"},
		},
		Expenses: []ChartEntry{
			{Code: "6601-01", Name: "Office supplies"},
			{Code: "6601-02", Name: "Software subscriptions"},
			{Code: "6602-01", Name: "Entertainment"},
			{Code: "6602-02", Name: "Meals"},
			{Code: "6603-01", Name: "Travel"},
			{Code: "6604-01", Name: "Communication"},
		},
	}
}

// Accounts flattens the chart into typed accounts, in file order.
func (c ChartOfAccounts) Accounts() []models.Account {
	var accounts []models.Account
	add := func(entries []ChartEntry, accountType string) {
		for _, e := range entries {
			accounts = append(accounts, models.Account{Code: e.Code, Name: e.Name, Type: accountType})
		}
	}

	add(c.Assets, AccountAsset)
	add(c.Liabilities, AccountLiability)
	add(c.Equity, AccountEquity)
	add(c.Income, AccountIncome)
	add(c.Expenses, AccountExpense)

	return accounts
}

// Name returns the name of the account with code, or "" when the chart has none.
func (c ChartOfAccounts) Name(code string) string {
	for _, account := range c.Accounts() {
		if account.Code == code {
			return account.Name
		}
	}
	return ""
}

// Validate rejects empty and duplicate account codes.
func (c ChartOfAccounts) Validate() error {
	seen := make(map[string]bool)
	for _, account := range c.Accounts() {
		if account.Code == "" {
			return fmt.Errorf("chart_of_accounts: %s account %q has no code", account.Type, account.Name)
		}
		if seen[account.Code] {
			return fmt.Errorf("chart_of_accounts: duplicate code %s", account.Code)
		}
		seen[account.Code] = true
	}
	return nil
}
