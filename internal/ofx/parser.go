// Package ofx reads OFX/QFX bank and credit card statements and turns their
// lines into ledger transaction drafts.
package ofx

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

// Line is one statement entry. Amount is always positive; Type carries the
// direction.
type Line struct {
	FITID       string
	AccountID   string
	Posted      time.Time
	Type        core.TransactionType
	Amount      core.Money
	Description string
	TrnType     string
}

var (
	severityRe = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML files sometimes drop the closing bracket of bare tags.
	openTagRe = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess fixes formatting issues common in bank exports.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagRe.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit card statement in r.
func Parse(r io.Reader) ([]Line, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("parse OFX file: %w", err)
	}

	var lines []Line
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		converted, err := convert(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID))
		if err != nil {
			return nil, err
		}
		lines = append(lines, converted...)
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		converted, err := convert(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID))
		if err != nil {
			return nil, err
		}
		lines = append(lines, converted...)
	}
	return lines, nil
}

func convert(txns []ofxgo.Transaction, accountID string) ([]Line, error) {
	out := make([]Line, 0, len(txns))
	for _, t := range txns {
		d, err := decimal.NewFromString(t.TrnAmt.FloatString(2))
		if err != nil {
			return nil, fmt.Errorf("statement line %s: invalid amount: %w", t.FiTID, err)
		}
		if d.IsZero() {
			continue
		}
		typ := core.Income
		if d.IsNegative() {
			typ = core.Expense
		}
		out = append(out, Line{
			FITID:       string(t.FiTID),
			AccountID:   accountID,
			Posted:      core.DateOnly(t.DtPosted.Time),
			Type:        typ,
			Amount:      core.NewMoney(d.Abs()),
			Description: describe(t),
			TrnType:     t.TrnType.String(),
		})
	}
	return out, nil
}

var purchasePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"COMPRA CARTAO ",
	"COMPRA COM CARTAO ",
	"PAGTO ",
}

// describe picks the cleanest payee text available on the line.
func describe(t ofxgo.Transaction) string {
	if t.Payee != nil && t.Payee.Name != "" {
		return strings.TrimSpace(string(t.Payee.Name))
	}
	name := strings.TrimSpace(string(t.Name))
	if name == "" || isGeneric(name) {
		if memo := strings.TrimSpace(string(t.Memo)); memo != "" {
			name = memo
		}
	}
	upper := strings.ToUpper(name)
	for _, p := range purchasePrefixes {
		if strings.HasPrefix(upper, p) {
			name = strings.TrimSpace(name[len(p):])
			break
		}
	}
	return name
}

func isGeneric(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "PIX", "TED", "DOC", "SAQUE":
		return true
	}
	return false
}
