package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNonBlockingReader_ReadLine(t *testing.T) {
	nbr := NewNonBlockingReader(strings.NewReader("  first  \nsecond\nlast"))
	ctx := context.Background()

	for _, want := range []string{"first", "second", "last"} {
		got, err := nbr.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := nbr.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNonBlockingReader_Cancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	defer func() { _ = pw.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewNonBlockingReader(pr).ReadLine(ctx)
	assert.Equal(t, ErrInputCancelled, err)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
		{input: "maybe\n", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := Confirm(context.Background(), strings.NewReader(tt.input), &out, "Drop all tables?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Drop all tables? [y/N]")
		})
	}
}

func TestInterruptHandler(t *testing.T) {
	out := &syncBuffer{}
	h := NewInterruptHandler(out, "Stopping workers")

	ctx, cancel := h.HandleInterrupts(context.Background())
	defer cancel()
	assert.False(t, h.WasInterrupted())

	h.signals <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not canceled")
	}
	assert.True(t, h.WasInterrupted())
	assert.Contains(t, out.String(), "Stopping workers")
}

func TestInterruptHandler_ParentCanceled(t *testing.T) {
	h := NewInterruptHandler(nil, "")
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := h.HandleInterrupts(parent)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.False(t, h.WasInterrupted())
}

func TestRenderDashboard(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC)

	snap := &monitor.Snapshot{
		TakenAt:           at,
		TotalTransactions: 1234,
		UniqueCustomers:   56,
		UniqueMerchants:   7,
		CheckpointRow:     1234,
		PendingUploads:    3,
		InputObjects:      2,
		Patterns: []monitor.PatternCount{
			{PatternID: model.PatternChild, ActionType: model.ActionChild, Count: 2},
			{PatternID: model.PatternDEINeeded, ActionType: model.ActionDEINeeded, Count: 1},
		},
		RecentDetections: []monitor.Detection{
			{DetectionTime: at, PatternID: model.PatternDEINeeded, ActionType: model.ActionDEINeeded, MerchantID: "M9"},
		},
		Workers: map[string]string{"producer": "DONE", "consumer": "POLLING"},
	}

	out := RenderDashboard(snap, loc)
	for _, want := range []string{"1234", "CHILD", "DEI-NEEDED", "M9", "Detections by pattern (3)", "2024-05-01 09:30:00", "consumer", "DONE"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderDashboard_Empty(t *testing.T) {
	out := RenderDashboard(&monitor.Snapshot{TakenAt: time.Now()}, nil)
	assert.Contains(t, out, "No detections yet")
}

func TestNewRowProgress(t *testing.T) {
	var out bytes.Buffer
	bar := NewRowProgress(&out, 100, 40)
	require.NoError(t, bar.Add(10))
	assert.Equal(t, int64(50), bar.State().CurrentNum)
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		name   string
		format func(string) string
		icon   string
	}{
		{"success", FormatSuccess, iconOK},
		{"error", FormatError, iconFail},
		{"warning", FormatWarning, iconWarn},
		{"title", FormatTitle, iconPipeline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.format("schema is up to date")
			assert.Contains(t, out, tt.icon)
			assert.Contains(t, out, "schema is up to date")
		})
	}
	assert.Contains(t, FormatPrompt("Continue?"), "Continue? →")
}
