package delegate

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// PrintTaskName is the name the loan approval process uses for PrintTask.
const PrintTaskName = "printTask"

// printTaskLine is the exact line written for every invocation.
const printTaskLine = "PrintTask Called"

// PrintTask writes a fixed line to the console. It neither reads nor writes
// process variables and never fails.
type PrintTask struct {
	console *logrus.Logger
}

// NewPrintTask creates a PrintTask writing to w.
func NewPrintTask(w io.Writer) *PrintTask {
	return &PrintTask{console: NewConsole(w)}
}

// Execute writes "PrintTask Called".
func (p *PrintTask) Execute(_ context.Context, _ Execution) error {
	p.console.Info(printTaskLine)
	return nil
}

// NewConsole returns a logrus logger that writes bare messages, one per line,
// the way a plain console print would.
func NewConsole(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(consoleFormatter{})
	return l
}

type consoleFormatter struct{}

func (consoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}
