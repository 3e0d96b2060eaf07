package shared

import (
	"fmt"
	"strings"
)

// RowIssue pinpoints one problem in an import file. Row is the 1-based file line, the header
// being line 1; zero means the issue concerns the file as a whole.
type RowIssue struct {
	Row     int    `json:"row"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i RowIssue) String() string {
	if i.Row == 0 {
		return i.Message
	}
	if i.Field == "" {
		return fmt.Sprintf("row %d: %s", i.Row, i.Message)
	}
	return fmt.Sprintf("row %d %s: %s", i.Row, i.Field, i.Message)
}

// ImportError rejects a whole import before storage is touched.
type ImportError struct {
	Issues []RowIssue `json:"issues"`
}

func (e *ImportError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.String())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidImport, strings.Join(msgs, "; "))
}

func (e *ImportError) Unwrap() error { return ErrInvalidImport }
