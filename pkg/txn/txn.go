package txn

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Direction indicates whether money moved into or out of the account.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// Transaction is a single normalized bank statement row.
// Immutable once produced; the scoring pipeline never mutates it.
type Transaction struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Direction   Direction `json:"direction"`
	Balance     *float64  `json:"balance,omitempty"`
}

// Label is the classification assigned to a transaction.
type Label struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	IsIncome    bool   `json:"is_income"`
	IsExpense   bool   `json:"is_expense"`
}

// Classified is a transaction plus its label.
type Classified struct {
	Transaction
	Label
}

// Record is a raw feed row as delivered by the upstream statement parser.
// All fields are strings; Normalize converts them.
type Record struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Debit       string `json:"debit,omitempty"`
	Credit      string `json:"credit,omitempty"`
	Balance     string `json:"balance,omitempty"`
}

// Statement date formats seen across bank exports.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02 Jan 2006",
	"02-Jan-2006",
	"2006-01-02T15:04:05Z07:00",
}

// Normalize converts raw feed rows into transactions. Rows with an
// unparseable date or without a usable amount are dropped and counted,
// never imputed.
func Normalize(recs []Record) ([]Transaction, int) {
	out := make([]Transaction, 0, len(recs))
	skipped := 0

	for _, r := range recs {
		d, ok := parseDate(r.Date)
		if !ok {
			slog.Debug("skipping row with unparseable date", "date", r.Date)
			skipped++
			continue
		}

		t := Transaction{Date: d, Description: strings.TrimSpace(r.Description)}

		credit, creditOK := parseAmount(r.Credit)
		debit, debitOK := parseAmount(r.Debit)

		switch {
		case creditOK && credit > 0:
			t.Amount = credit
			t.Direction = Credit
		case debitOK && debit > 0:
			t.Amount = debit
			t.Direction = Debit
		default:
			slog.Debug("skipping row without a usable amount", "debit", r.Debit, "credit", r.Credit)
			skipped++
			continue
		}

		if b, ok := parseAmount(r.Balance); ok {
			t.Balance = &b
		}

		out = append(out, t)
	}

	return out, skipped
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts bank-export amount formats: thousand separators,
// currency symbols, and trailing Cr/Dr markers.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	s = strings.NewReplacer(",", "", "₹", "", "INR", "", " ", "").Replace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "Cr"), "Dr")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
