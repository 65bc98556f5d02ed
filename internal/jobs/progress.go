package jobs

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Progress is the writer handed to a job's work function. It formats report
// output into the job's ProgressSink and tracks stage transitions for chains.
// It satisfies interfaces.Reporter so content operations can write to it directly.
type Progress struct {
	job         *Job
	brokenLinks atomic.Bool
}

var _ interfaces.Reporter = (*Progress)(nil)

// Print appends a plain chunk
func (p *Progress) Print(text string) {
	p.write(models.FormatDefault, text)
}

// Printf appends a formatted plain chunk
func (p *Progress) Printf(format string, args ...interface{}) {
	p.write(models.FormatDefault, fmt.Sprintf(format, args...))
}

// PrintFormatted appends a chunk with an explicit display format
func (p *Progress) PrintFormatted(format models.ReportFormat, text string) {
	p.write(format, text)
}

// Exception reports a non-fatal error inside the operation. The job keeps running.
func (p *Progress) Exception(err error) {
	if err == nil {
		return
	}
	p.write(models.FormatError, "error: "+flatten(err.Error()))
}

// BrokenLink reports a resource whose link targets do not resolve
func (p *Progress) BrokenLink(source string, targets []string) {
	p.brokenLinks.Store(true)
	p.write(models.FormatNote, "checking "+source)
	for _, target := range targets {
		p.write(models.FormatWarning, "broken link to "+target)
	}
}

// HasBrokenLinks reports whether BrokenLink was called during this job
func (p *Progress) HasBrokenLinks() bool {
	return p.brokenLinks.Load()
}

// JobID returns the ID of the job this writer belongs to
func (p *Progress) JobID() string {
	return p.job.id
}

func (p *Progress) enterStage(index int, name string) {
	p.job.setStage(models.StageInfo{Index: index, Name: name})
}

func (p *Progress) marker(text string) {
	p.write(models.FormatMarker, text)
}

func (p *Progress) write(format models.ReportFormat, text string) {
	seq := p.job.sink.AppendFormatted(format, text)
	p.job.notifyProgress(seq, format, text)
}

// flatten folds multi-line text into one line so a chunk renders as one entry
func flatten(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\r", " ")), " ")
}
