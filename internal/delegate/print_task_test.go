package delegate

import (
	"bytes"
	"context"
	"testing"

	"github.com/seantiz/showcase/internal/model"
)

// recordingExecution fails the test if a delegate touches variables.
type recordingExecution struct {
	t *testing.T
}

func (e recordingExecution) ProcessInstanceID() string    { return "pi" }
func (e recordingExecution) ProcessDefinitionID() string  { return "pd" }
func (e recordingExecution) ProcessDefinitionKey() string { return "loanApproval" }
func (e recordingExecution) ActivityID() string           { return "printRequest" }
func (e recordingExecution) BusinessKey() string          { return "" }

func (e recordingExecution) Variable(name string) (model.TypedValue, bool) {
	e.t.Errorf("unexpected read of variable %q", name)
	return model.TypedValue{}, false
}

func (e recordingExecution) Variables() model.Variables {
	e.t.Error("unexpected read of variables")
	return nil
}

func (e recordingExecution) SetVariable(name string, _ model.TypedValue) error {
	e.t.Errorf("unexpected write of variable %q", name)
	return nil
}

func TestPrintTaskWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	task := NewPrintTask(&buf)

	if err := task.Execute(context.Background(), recordingExecution{t: t}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := buf.String(); got != "PrintTask Called\n" {
		t.Errorf("output = %q, want %q", got, "PrintTask Called\n")
	}
}

func TestPrintTaskRepeated(t *testing.T) {
	var buf bytes.Buffer
	task := NewPrintTask(&buf)

	for i := 0; i < 3; i++ {
		if err := task.Execute(context.Background(), recordingExecution{t: t}); err != nil {
			t.Fatalf("Execute[%d]: %v", i, err)
		}
	}

	want := "PrintTask Called\nPrintTask Called\nPrintTask Called\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
