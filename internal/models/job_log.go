package models

import "time"

// ReportFormat classifies a progress chunk so a UI can style it.
type ReportFormat string

const (
	FormatDefault  ReportFormat = "default"
	FormatHeadline ReportFormat = "headline"
	FormatWarning  ReportFormat = "warning"
	FormatNote     ReportFormat = "note"
	FormatOK       ReportFormat = "ok"
	FormatError    ReportFormat = "error"
	FormatMarker   ReportFormat = "marker" // Stage transition inside a chained job
)

// ProgressChunk is a single unit of progress text written by a running job.
// Seq is assigned by the sink and is unique and increasing within one sink.
type ProgressChunk struct {
	Seq       uint64       `json:"seq"`
	Text      string       `json:"text"`
	Format    ReportFormat `json:"format"`
	Timestamp time.Time    `json:"timestamp"`
}

// Texts returns just the text of each chunk, preserving order
func Texts(chunks []ProgressChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
