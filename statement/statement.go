// Package statement reads household spreadsheet exports and writes account
// statements as CSV.
//
// The import format has one row per day with a column per account type:
//
//	Date,Note,Spending,Saving,Donating
//	03/14/2024,Birthday money,$20.00,"$1,000.00",
//	03/15/2024,Toy,(4.99),,
//
// Amounts may carry a dollar sign and thousands separators. A value in
// parentheses is negative. Every non-empty, non-zero cell becomes one Entry.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// DefaultNote is used for rows without a note.
const DefaultNote = "Imported transaction"

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("statement: missing column")

// columns maps import header names to account types.
var columns = []struct {
	header string
	typ    account.Type
}{
	{"spending", account.TypeSpending},
	{"saving", account.TypeSaving},
	{"donating", account.TypeDonation},
}

// Entry is one imported amount. Amount is signed: positive deposits,
// negative withdrawals.
type Entry struct {
	Row         int
	Date        time.Time
	Note        string
	AccountType account.Type
	Amount      types.Money
}

// TransactionType returns deposit for positive entries and withdrawal for
// negative ones.
func (e Entry) TransactionType() transaction.Type {
	if e.Amount.IsNegative() {
		return transaction.TypeWithdrawal
	}
	return transaction.TypeDeposit
}

// Parse reads an import file. Rows are numbered from 1 for the header.
func Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("statement: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	dateCol, ok := index["date"]
	if !ok {
		return nil, fmt.Errorf("%w: Date", ErrMissingColumn)
	}
	noteCol, hasNote := index["note"]

	var entries []Entry
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("statement: row %d: %w", row, err)
		}
		if blank(rec) {
			continue
		}

		date, err := ParseDate(cell(rec, dateCol))
		if err != nil {
			return nil, fmt.Errorf("statement: row %d: %w", row, err)
		}
		note := DefaultNote
		if hasNote {
			if n := cell(rec, noteCol); n != "" {
				note = n
			}
		}

		for _, c := range columns {
			col, ok := index[c.header]
			if !ok {
				continue
			}
			amount, err := ParseAmount(cell(rec, col))
			if err != nil {
				return nil, fmt.Errorf("statement: row %d %s: %w", row, c.header, err)
			}
			if amount.IsZero() {
				continue
			}
			entries = append(entries, Entry{
				Row:         row,
				Date:        date,
				Note:        note,
				AccountType: c.typ,
				Amount:      amount,
			})
		}
	}
	return entries, nil
}

// ParseAmount parses a spreadsheet currency cell. An empty cell is zero.
func ParseAmount(s string) (types.Money, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Zero(), nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	m, err := types.ParseMoney(s)
	if err != nil {
		return types.Zero(), err
	}
	if negative {
		m = m.Abs().Negate()
	}
	return m, nil
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01-02-2006", "01.02.2006"}

// ParseDate accepts ISO dates and month-first dates with four or two digit
// years. Two digit years below 50 are in the 2000s.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == '.' })
	if len(parts) == 3 {
		month, errM := strconv.Atoi(parts[0])
		day, errD := strconv.Atoi(parts[1])
		year, errY := strconv.Atoi(parts[2])
		if errM == nil && errD == nil && errY == nil && len(parts[2]) == 2 {
			if year < 50 {
				year += 2000
			} else {
				year += 1900
			}
			t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			if t.Month() == time.Month(month) && t.Day() == day {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ──────────────────────────────────────────────────
// Export
// ──────────────────────────────────────────────────

// Header is the first line of an exported statement.
var Header = []string{"Date", "Account", "Type", "Description", "Amount", "Status"}

// Row is one exported statement line. Amount is the signed effect the
// transaction has, or would have, once counted.
type Row struct {
	Date        time.Time
	Account     string
	Type        transaction.Type
	Description string
	Amount      types.Money
	Status      string
}

// NewRow builds a statement row for t held by an account named accountName.
func NewRow(t *transaction.Transaction, accountName string) Row {
	return Row{
		Date:        t.Date,
		Account:     accountName,
		Type:        t.Type,
		Description: t.Description,
		Amount:      t.Type.SignedEffect(t.Amount),
		Status:      t.Status(),
	}
}

// Export writes rows as CSV, header first.
func Export(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("statement: write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format("2006-01-02"),
			r.Account,
			string(r.Type),
			r.Description,
			r.Amount.FormatMajor(),
			r.Status,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("statement: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
