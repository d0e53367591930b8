package dispatch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/Veraticus/txnflow/internal/model"
)

// Header is the column layout of an uploaded detection batch.
var Header = []string{
	"YStartTime(IST)",
	"DetectionTime(IST)",
	"PatternId",
	"ActionType",
	"CustomerName",
	"MerchantId",
}

// TimeLayout renders both timestamp columns.
const TimeLayout = "2006-01-02 15:04:05"

// Encode writes detections as CSV with timestamps rendered in loc.
func Encode(w io.Writer, detections []model.Detection, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, d := range detections {
		action := d.ActionType
		if action == "" {
			action = d.PatternID.Action()
		}
		record := []string{
			formatTime(d.RunStartTime, loc),
			formatTime(d.DetectionTime, loc),
			string(d.PatternID),
			string(action),
			d.CustomerName,
			d.MerchantID,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write detection %d: %w", d.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Marshal encodes detections into a byte slice.
func Marshal(detections []model.Detection, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, detections, loc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(TimeLayout)
}
