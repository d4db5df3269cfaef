package report

import (
	"fmt"
	"io"

	"github.com/fulmenhq/bundlepress/pkg/ascii"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Summary is the boxed end-of-phase message printed by every command.
type Summary struct {
	Phase string
	OK    bool
	Lines []string
	// Rerun is the command that resumes the phase; shown only when OK is false.
	Rerun string
}

// String renders the summary as a box.
func (s Summary) String() string {
	status := "complete"
	if !s.OK {
		status = "incomplete"
	}
	lines := []string{fmt.Sprintf("%s %s", cases.Title(language.Und).String(s.Phase), status)}
	lines = append(lines, s.Lines...)
	if !s.OK && s.Rerun != "" {
		lines = append(lines, "", "Re-run to resume: "+s.Rerun)
	}
	return ascii.Box(lines)
}

// Write prints the summary box to w.
func (s Summary) Write(w io.Writer) {
	_, _ = io.WriteString(w, s.String())
}
