// Package csvio reads bank and card statement exports into transactions and
// writes a period's transactions back out as CSV.
//
// Fields are split on bare commas. Quoted fields are not understood on input
// and embedded quotes are not escaped on output.
package csvio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"fintrack/internal/core"
)

const ContentType = "text/csv"

// ExportHeader is the fixed first line of every export.
const ExportHeader = "date,description,category,amount,account"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type ImportOptions struct {
	Username string
	Source   core.ImportSource
	Note     string
	// NewID assigns transaction ids; nil leaves them empty.
	NewID func() string
}

type ImportResult struct {
	Transactions []core.Transaction
	Skipped      int
}

type columns struct {
	date, desc, amount, account int
}

// Parse reads a statement. The first non-empty line is the header; columns
// are found by case-insensitive substring ("date", "desc", "amount" and
// optionally "account"). Rows whose date does not parse or whose amount is
// zero or unreadable are skipped. Amounts are stored as absolute values and
// categories come from core.Classify.
//
// A missing required column or a file with no usable rows returns a
// *core.ImportFormatError and no transactions.
func Parse(r io.Reader, opts ImportOptions) (ImportResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv: %w", err)
	}
	lines := splitLines(decode(raw))

	header := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			header = i
			break
		}
	}
	if header < 0 {
		return ImportResult{}, &core.ImportFormatError{Reason: "empty file"}
	}

	cols, missing := locateColumns(strings.Split(lines[header], ","))
	if len(missing) > 0 {
		return ImportResult{}, &core.ImportFormatError{Reason: "missing required columns", Missing: missing}
	}

	var res ImportResult
	for _, line := range lines[header+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tx, ok := parseRow(strings.Split(line, ","), cols, opts)
		if !ok {
			res.Skipped++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}

	if len(res.Transactions) == 0 {
		return ImportResult{Skipped: res.Skipped}, &core.ImportFormatError{Reason: "no valid rows"}
	}
	return res, nil
}

func parseRow(fields []string, cols columns, opts ImportOptions) (core.Transaction, bool) {
	at := func(i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	day, ok := core.ParseDate(at(cols.date))
	if !ok {
		return core.Transaction{}, false
	}
	amount, ok := parseAmount(at(cols.amount))
	if !ok {
		return core.Transaction{}, false
	}

	desc := at(cols.desc)
	tx := core.Transaction{
		Username:    opts.Username,
		Date:        day.Format(core.DateLayout),
		Description: desc,
		Category:    core.Classify(desc),
		Amount:      amount,
		Account:     at(cols.account),
		Meta:        map[string]string{core.MetaSource: string(opts.Source)},
	}
	if opts.Note != "" {
		tx.Meta[core.MetaNote] = opts.Note
	}
	if opts.NewID != nil {
		tx.ID = opts.NewID()
	}
	return tx, true
}

// parseAmount drops the sign; zero and out-of-range amounts are rejected.
func parseAmount(s string) (core.Money, bool) {
	if s == "" {
		return core.Money{}, false
	}
	m, err := core.ParseMoney(s)
	if err != nil || m.IsZero() {
		return core.Money{}, false
	}
	if m.Cents < 0 {
		m.Cents = -m.Cents
	}
	return m, true
}

func locateColumns(header []string) (columns, []string) {
	find := func(needle string) int {
		for i, h := range header {
			if strings.Contains(strings.ToLower(h), needle) {
				return i
			}
		}
		return -1
	}

	cols := columns{
		date:    find("date"),
		desc:    find("desc"),
		amount:  find("amount"),
		account: find("account"),
	}
	var missing []string
	if cols.date < 0 {
		missing = append(missing, "date")
	}
	if cols.desc < 0 {
		missing = append(missing, "description")
	}
	if cols.amount < 0 {
		missing = append(missing, "amount")
	}
	return cols, missing
}

// decode strips a UTF-8 BOM and reinterprets invalid UTF-8 as Windows-1252,
// the usual encoding of spreadsheet exports on Windows.
func decode(raw []byte) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw)
	}
	fixed, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err == nil && utf8.Valid(fixed) {
		return string(fixed)
	}
	return strings.ToValidUTF8(string(raw), "")
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(strings.ReplaceAll(s, "\r", "\n"), "\n")
}

// Export writes the header and one line per transaction in the given order.
func Export(w io.Writer, txs []core.Transaction) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(ExportHeader + "\n"); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		line := strings.Join([]string{
			field(t.Date),
			field(t.Description),
			field(string(t.Category)),
			field(t.Amount.String()),
			field(t.Account),
		}, ",")
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportFilename names the download for a period.
func ExportFilename(p core.Period) string {
	return "expenses_" + string(p) + ".csv"
}

func field(s string) string {
	if strings.Contains(s, ",") {
		return `"` + s + `"`
	}
	return s
}
