// Package chunk encodes and decodes the CSV form of transaction rows used by
// the source dataset and by chunk objects.
package chunk

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/shopspring/decimal"
)

// Column names of the transaction CSV.
const (
	ColTransactionID = "TransactionId"
	ColCustomerID    = "CustomerId"
	ColCustomerName  = "CustomerName"
	ColGender        = "Gender"
	ColMerchantID    = "MerchantId"
	ColCategory      = "TransactionType"
	ColAmount        = "TransactionAmount"
	ColDate          = "TransactionDate"
)

// Header is the column order written by Encode.
var Header = []string{
	ColTransactionID,
	ColCustomerID,
	ColCustomerName,
	ColGender,
	ColMerchantID,
	ColCategory,
	ColAmount,
	ColDate,
}

// requiredColumns must appear in the header. TransactionId is optional and
// synthesised when absent.
var requiredColumns = []string{
	ColCustomerID,
	ColCustomerName,
	ColGender,
	ColMerchantID,
	ColCategory,
	ColAmount,
	ColDate,
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// Encode writes rows as CSV with a header line.
func Encode(w io.Writer, rows []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(Header))
	for i := range rows {
		row := &rows[i]
		record[0] = row.ID
		record[1] = row.CustomerID
		record[2] = row.CustomerName
		record[3] = row.Gender
		record[4] = row.MerchantID
		record[5] = row.Category
		record[6] = row.Amount.String()
		record[7] = ""
		if !row.OccurredAt.IsZero() {
			record[7] = row.OccurredAt.UTC().Format(time.RFC3339Nano)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Marshal encodes rows into a byte slice.
func Marshal(rows []model.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeOptions controls row id synthesis for datasets without an id column.
type DecodeOptions struct {
	// RowOffset is the dataset index of the first data row. Rows without a
	// TransactionId get the id "row-<index>".
	RowOffset int
}

// Result holds the decoded rows and the rows that were skipped.
type Result struct {
	Rows    []model.Transaction
	Skipped []*common.DataFormatError
}

// Decode parses CSV rows. Malformed rows are skipped and reported in
// Result.Skipped; an error is returned only when the input as a whole is
// unusable (no header or a missing required column).
func Decode(r io.Reader, opts DecodeOptions) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &common.DataFormatError{Line: 1, Reason: "missing header"}
		}
		return nil, &common.DataFormatError{Line: 1, Reason: err.Error()}
	}

	cols := indexColumns(header)
	for _, name := range requiredColumns {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			return nil, &common.DataFormatError{Line: 1, Column: name, Reason: "missing column"}
		}
	}

	res := &Result{}
	index := opts.RowOffset
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Skipped = append(res.Skipped, &common.DataFormatError{Line: parseErr.Line, Reason: parseErr.Err.Error()})
				index++
				continue
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)

		row, dfErr := parseRecord(record, cols, index, line)
		index++
		if dfErr != nil {
			res.Skipped = append(res.Skipped, dfErr)
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	return res, nil
}

func parseRecord(record []string, cols map[string]int, index, line int) (model.Transaction, *common.DataFormatError) {
	get := func(name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	missing := func(name string) *common.DataFormatError {
		return &common.DataFormatError{Line: line, Column: name, Reason: "empty value"}
	}

	row := model.Transaction{
		ID:           get(ColTransactionID),
		CustomerID:   get(ColCustomerID),
		CustomerName: get(ColCustomerName),
		Gender:       get(ColGender),
		MerchantID:   get(ColMerchantID),
		Category:     get(ColCategory),
	}
	if row.ID == "" {
		row.ID = "row-" + strconv.Itoa(index)
	}
	if row.CustomerID == "" {
		return model.Transaction{}, missing(ColCustomerID)
	}
	if row.MerchantID == "" {
		return model.Transaction{}, missing(ColMerchantID)
	}

	rawAmount := get(ColAmount)
	if rawAmount == "" {
		return model.Transaction{}, missing(ColAmount)
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return model.Transaction{}, &common.DataFormatError{Line: line, Column: ColAmount, Reason: fmt.Sprintf("invalid amount %q", rawAmount)}
	}
	row.Amount = amount

	if rawDate := get(ColDate); rawDate != "" {
		at, ok := parseDate(rawDate)
		if !ok {
			return model.Transaction{}, &common.DataFormatError{Line: line, Column: ColDate, Reason: fmt.Sprintf("invalid date %q", rawDate)}
		}
		row.OccurredAt = at
	}

	return row, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
