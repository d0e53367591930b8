package cli

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// NewRowProgress returns a progress bar counting produced rows out of total,
// starting at the rows already produced by earlier runs.
func NewRowProgress(w io.Writer, total, done int) *progressbar.ProgressBar {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Producing chunks...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	if done > 0 {
		_ = bar.Set(done)
	}
	return bar
}
