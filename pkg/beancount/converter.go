package beancount

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

// DefaultCurrency is used when the converter is given none.
const DefaultCurrency = "JPY"

var accountRoots = map[string]string{
	rules.AccountAsset:     "Assets",
	rules.AccountLiability: "Liabilities",
	rules.AccountEquity:    "Equity",
	rules.AccountIncome:    "Income",
	rules.AccountExpense:   "Expenses",
}

// Converter converts ledger vouchers to Beancount format.
type Converter struct {
	accounts map[string]models.Account
	order    []string
	currency string
}

// NewConverter creates a Converter for the given chart of accounts.
func NewConverter(chart []models.Account, currency string) *Converter {
	if currency == "" {
		currency = DefaultCurrency
	}
	c := &Converter{
		accounts: make(map[string]models.Account, len(chart)),
		currency: currency,
	}
	for _, account := range chart {
		if _, ok := c.accounts[account.Code]; !ok {
			c.order = append(c.order, account.Code)
		}
		c.accounts[account.Code] = account
	}
	return c
}

// AccountName maps a ledger account code to a Beancount account name.
// Codes missing from the chart land under Expenses:Unmapped.
func (c *Converter) AccountName(code string) string {
	account, ok := c.accounts[code]
	if !ok {
		return "Expenses:Unmapped:" + sanitizeAccountName(code)
	}
	root, ok := accountRoots[account.Type]
	if !ok {
		root = "Expenses"
	}
	return root + ":" + sanitizeAccountName(code)
}

// ConvertVoucher converts a voucher to a Beancount transaction.
// Debit lines are positive postings, credit lines negative.
func (c *Converter) ConvertVoucher(v models.Voucher) Transaction {
	postings := make([]Posting, 0, len(v.Lines))
	for _, line := range v.Lines {
		amount := line.Amount
		if line.Direction == models.Credit {
			amount = amount.Neg()
		}
		postings = append(postings, Posting{
			Account:  c.AccountName(line.AccountCode),
			Amount:   amount,
			Currency: c.currency,
			Comment:  postingComment(line),
		})
	}

	metadata := map[string]string{"voucher_id": v.ID}
	if v.TraceID != "" {
		metadata["trace_id"] = v.TraceID
	}
	if v.Reference != "" {
		metadata["reference"] = v.Reference
	}
	if v.MatchedShadowID != "" {
		metadata["shadow_id"] = v.MatchedShadowID
	}

	var links []string
	if v.GroupID != "" {
		links = []string{"group-" + v.GroupID}
	}

	return Transaction{
		Date:      v.CreatedAt.UTC().Format("2006-01-02"),
		Narration: c.narration(v),
		Payee:     v.Vendor,
		Tags:      []string{strings.ToLower(v.Type)},
		Links:     links,
		Metadata:  metadata,
		Postings:  postings,
	}
}

// OpenDirectives returns an open directive for every chart account, dated date.
func (c *Converter) OpenDirectives(date string) string {
	var sb strings.Builder
	for _, code := range c.order {
		sb.WriteString(fmt.Sprintf("%s open %s %s", date, c.AccountName(code), c.currency))
		if name := c.accounts[code].Name; name != "" {
			sb.WriteString(fmt.Sprintf(" ; %s", name))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatTransaction formats a Beancount transaction as a string.
func (c *Converter) FormatTransaction(txn Transaction) string {
	var sb strings.Builder

	// Transaction header
	sb.WriteString(txn.Date)
	sb.WriteString(" *")
	if txn.Payee != "" {
		sb.WriteString(fmt.Sprintf(" %s", quote(txn.Payee)))
	}
	sb.WriteString(fmt.Sprintf(" %s", quote(txn.Narration)))
	for _, tag := range txn.Tags {
		sb.WriteString(" #" + tag)
	}
	for _, link := range txn.Links {
		sb.WriteString(" ^" + link)
	}
	sb.WriteString("\n")

	keys := make([]string, 0, len(txn.Metadata))
	for k := range txn.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, quote(txn.Metadata[k])))
	}

	// Postings
	for _, posting := range txn.Postings {
		sb.WriteString("  ")
		sb.WriteString(posting.Account)

		// Right-align amount (typical Beancount style)
		spaces := max(1, 60-len(posting.Account))
		sb.WriteString(strings.Repeat(" ", spaces))
		sb.WriteString(fmt.Sprintf("%s %s", posting.Amount.StringFixed(2), posting.Currency))

		if posting.Comment != "" {
			sb.WriteString(fmt.Sprintf(" ; %s", posting.Comment))
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// Total returns the sum of the postings, zero for a balanced transaction.
func (t Transaction) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range t.Postings {
		total = total.Add(p.Amount)
	}
	return total
}

func (c *Converter) narration(v models.Voucher) string {
	label := fmt.Sprintf("%s-%d", v.Type, v.Number)
	if account, ok := c.accounts[v.Category]; ok && account.Name != "" {
		return label + " " + account.Name
	}
	if v.Category != "" {
		return label + " " + v.Category
	}
	return label
}

func postingComment(line models.LedgerEntry) string {
	var parts []string
	if line.Department != "" {
		parts = append(parts, "department "+line.Department)
	}
	if line.Project != "" {
		parts = append(parts, "project "+line.Project)
	}
	if line.Counterparty != "" {
		parts = append(parts, "counterparty "+line.Counterparty)
	}
	return strings.Join(parts, ", ")
}

func sanitizeAccountName(name string) string {
	// Beancount account components cannot hold spaces or colons
	name = strings.ReplaceAll(name, " ", "")
	return strings.ReplaceAll(name, ":", "-")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
