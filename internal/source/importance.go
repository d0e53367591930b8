package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/shopspring/decimal"
)

// Importance CSV columns.
const (
	ColImportanceCustomer = "CustomerId"
	ColImportanceCategory = "TransactionType"
	ColImportanceWeight   = "Weightage"
)

// ParseImportance parses the importance table. Later rows for the same
// (customer, category) win, matching the upsert that stores them.
func ParseImportance(r io.Reader) ([]model.CustomerImportance, []*common.DataFormatError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, &common.DataFormatError{Line: 1, Reason: "missing header"}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range []string{ColImportanceCustomer, ColImportanceCategory, ColImportanceWeight} {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			return nil, nil, &common.DataFormatError{Line: 1, Column: name, Reason: "missing column"}
		}
	}

	type key struct{ customer, category string }
	byKey := make(map[key]int)
	var (
		weights []model.CustomerImportance
		skipped []*common.DataFormatError
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped = append(skipped, &common.DataFormatError{Line: parseErr.Line, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		get := func(name string) string {
			i := cols[strings.ToLower(name)]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		w := model.CustomerImportance{
			CustomerID: get(ColImportanceCustomer),
			Category:   get(ColImportanceCategory),
		}
		if w.CustomerID == "" || w.Category == "" {
			skipped = append(skipped, &common.DataFormatError{Line: line, Reason: "missing customer or category"})
			continue
		}
		weight, err := decimal.NewFromString(get(ColImportanceWeight))
		if err != nil {
			skipped = append(skipped, &common.DataFormatError{Line: line, Column: ColImportanceWeight, Reason: "invalid weight"})
			continue
		}
		w.Weight = weight

		k := key{w.CustomerID, w.Category}
		if i, ok := byKey[k]; ok {
			weights[i] = w
			continue
		}
		byKey[k] = len(weights)
		weights = append(weights, w)
	}

	return weights, skipped, nil
}
