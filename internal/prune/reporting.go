package prune

import (
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	removalReportTemplateConstant       = "Removing %s from %s\n"
	dryRunRemovalReportTemplateConstant = "Would remove %s from %s\n"
)

type flusher interface {
	Flush() error
}

// Reporter emits human-readable removal lines to an underlying sink.
type Reporter interface {
	Printf(format string, args ...any)
}

type writerReporter struct {
	writer io.Writer
	mutex  *sync.Mutex
}

// NewWriterReporter constructs a Reporter that writes to the provided io.Writer, defaulting to standard output.
// Buffered writers exposing Flush are flushed after every line so removals appear as they happen.
func NewWriterReporter(writer io.Writer) Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return writerReporter{writer: writer, mutex: &sync.Mutex{}}
}

func (reporter writerReporter) Printf(format string, args ...any) {
	if reporter.writer == nil {
		return
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	if _, writeError := fmt.Fprintf(reporter.writer, format, args...); writeError != nil {
		return
	}
	if bufferedWriter, buffered := reporter.writer.(flusher); buffered {
		_ = bufferedWriter.Flush()
	}
}

func reportRemoval(reporter Reporter, dryRun bool, removal Removal) {
	template := removalReportTemplateConstant
	if dryRun {
		template = dryRunRemovalReportTemplateConstant
	}
	reporter.Printf(template, removal.Identifier, removal.ProjectFileName)
}
