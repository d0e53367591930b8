package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	rows := []model.Transaction{
		{
			ID:           "T1",
			CustomerID:   "C1",
			CustomerName: "Asha, R",
			Gender:       "Female",
			MerchantID:   "M1",
			Category:     "food",
			Amount:       decimal.RequireFromString("12.50"),
			OccurredAt:   time.Date(2024, 2, 3, 4, 5, 6, 789, time.UTC),
		},
		{
			ID:         "T2",
			CustomerID: "C2",
			MerchantID: "M2",
			Amount:     decimal.NewFromInt(-3),
		},
	}

	data, err := Marshal(rows)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(Header, ",")+"\n"))

	res, err := Decode(strings.NewReader(string(data)), DecodeOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, "Asha, R", res.Rows[0].CustomerName)
	assert.True(t, rows[0].Amount.Equal(res.Rows[0].Amount))
	assert.True(t, rows[0].OccurredAt.Equal(res.Rows[0].OccurredAt))
	assert.True(t, res.Rows[1].OccurredAt.IsZero())
	assert.True(t, rows[1].Amount.Equal(res.Rows[1].Amount))
}

func TestDecode_SkipsMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"TransactionId,CustomerId,CustomerName,Gender,MerchantId,TransactionType,TransactionAmount,TransactionDate",
		"T1,C1,Ann,F,M1,food,10.5,2024-01-01 10:00:00",
		"T2,C2,Bob,M,M1,food,abc,2024-01-01 10:00:00",
		"T3,,Cid,M,M1,food,1,2024-01-01",
		"T4,C4,Dee,F,,food,1,2024-01-01",
		"T5,C5,Eve,F,M2,food,7,not-a-date",
		"T6,C6,Fay,F,M2,food,,2024-01-01",
		"T7,C7,Gus,M,M3,travel,3,2024-01-01T09:30:00Z",
	}, "\n")

	res, err := Decode(strings.NewReader(input), DecodeOptions{})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "T1", res.Rows[0].ID)
	assert.Equal(t, "T7", res.Rows[1].ID)

	require.Len(t, res.Skipped, 5)
	assert.Equal(t, ColAmount, res.Skipped[0].Column)
	assert.Equal(t, 3, res.Skipped[0].Line)
	assert.Equal(t, ColCustomerID, res.Skipped[1].Column)
	assert.Equal(t, ColMerchantID, res.Skipped[2].Column)
	assert.Equal(t, ColDate, res.Skipped[3].Column)
	assert.Equal(t, ColAmount, res.Skipped[4].Column)
}

func TestDecode_SynthesisesRowIDs(t *testing.T) {
	input := "CustomerId,CustomerName,Gender,MerchantId,TransactionType,TransactionAmount,TransactionDate\n" +
		"C1,Ann,F,M1,food,1,2024-01-01\n" +
		"C2,Bob,M,M1,food,2,2024-01-02\n"

	res, err := Decode(strings.NewReader(input), DecodeOptions{RowOffset: 40})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "row-40", res.Rows[0].ID)
	assert.Equal(t, "row-41", res.Rows[1].ID)
}

func TestDecode_HeaderCaseAndOrder(t *testing.T) {
	input := "\ufefftransactionamount, merchantid ,CUSTOMERID,customername,GENDER,transactiontype,TransactionDate\n" +
		"5,M9,C9,Cy,F,food,2024-01-01\n"

	res, err := Decode(strings.NewReader(input), DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "M9", res.Rows[0].MerchantID)
	assert.Equal(t, "C9", res.Rows[0].CustomerID)
	assert.Equal(t, "Cy", res.Rows[0].CustomerName)
	assert.Equal(t, "F", res.Rows[0].Gender)
	assert.Equal(t, "food", res.Rows[0].Category)
	assert.True(t, decimal.NewFromInt(5).Equal(res.Rows[0].Amount))
}

func TestDecode_Unusable(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		column string
	}{
		{name: "empty", input: ""},
	}
	for _, col := range requiredColumns {
		var header []string
		for _, name := range Header {
			if name != col {
				header = append(header, name)
			}
		}
		tests = append(tests, struct {
			name   string
			input  string
			column string
		}{
			name:   "missing " + col,
			input:  strings.Join(header, ",") + "\n",
			column: col,
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), DecodeOptions{})
			var dfErr *common.DataFormatError
			require.ErrorAs(t, err, &dfErr)
			assert.Equal(t, tt.column, dfErr.Column)
		})
	}
}

func TestDecode_ShortRecord(t *testing.T) {
	input := strings.Join(Header, ",") + "\nT1,C1\nT2,C2,Bob,M,M2,food,4,2024-01-01\n"

	res, err := Decode(strings.NewReader(input), DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "T2", res.Rows[0].ID)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ColMerchantID, res.Skipped[0].Column)
}
