// Package processes embeds the process documents deployed by default.
package processes

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// LoanApproval is the resource name of the loan approval process.
const LoanApproval = "loan-approval.bpmn"

// LoanApprovalKey is the process key defined by LoanApproval.
const LoanApprovalKey = "loanApproval"

//go:embed *.bpmn
var embedded embed.FS

// FS returns the embedded process documents.
func FS() fs.FS {
	return embedded
}

// Read returns the content of a deployment resource. Names prefixed with
// "classpath:" or without a path separator are looked up in the embedded
// documents; anything else is read from the file system.
func Read(name string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(name, "classpath:"); ok {
		return readEmbedded(rest)
	}
	if !strings.ContainsAny(name, `/\`) {
		if data, err := readEmbedded(name); err == nil {
			return data, nil
		}
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", name, err)
	}
	return data, nil
}

func readEmbedded(name string) ([]byte, error) {
	data, err := fs.ReadFile(embedded, strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, fmt.Errorf("read embedded resource %s: %w", name, err)
	}
	return data, nil
}
