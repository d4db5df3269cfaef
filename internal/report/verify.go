package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/fulmenhq/bundlepress/internal/pipeline"
	"github.com/fulmenhq/bundlepress/pkg/ascii"
)

// RenderVerify writes the verification result to w. Text output lists only
// items that need attention.
func RenderVerify(w io.Writer, res pipeline.VerifyResult, f Format) error {
	switch f {
	case FormatText:
		_, err := io.WriteString(w, verifyText(res))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		return fmt.Errorf("unsupported format for verify: %s", f)
	}
}

func verifyText(res pipeline.VerifyResult) string {
	rows := [][]string{{"INDEX", "NAME", "RESULT", "REASON"}}
	for _, c := range res.Checks {
		switch {
		case c.Pending:
			rows = append(rows, []string{c.Index, c.Name, "pending", c.Reason})
		case !c.OK:
			rows = append(rows, []string{c.Index, c.Name, "reset", c.Reason})
		}
	}
	if len(rows) == 1 {
		return ""
	}
	return ascii.Table(rows)
}

// WriteJUnit writes one test case per item, plus a line-count case when the
// count comparison ran, as a JUnit XML report.
func WriteJUnit(w io.Writer, res pipeline.VerifyResult) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", "bundlepress.verify")

	tests, failures, skipped := 0, 0, 0
	for _, c := range res.Checks {
		tests++
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "bundlepress.verify.item")
		tc.CreateAttr("name", itemCaseName(c))
		switch {
		case c.Pending:
			skipped++
			tc.CreateElement("skipped").CreateAttr("message", c.Reason)
		case !c.OK:
			failures++
			fe := tc.CreateElement("failure")
			fe.CreateAttr("message", c.Reason)
			fe.SetText(fmt.Sprintf("slot %d link %s", c.Slot, c.Link))
		}
	}
	if res.Expected > 0 {
		tests++
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "bundlepress.verify.ledger")
		tc.CreateAttr("name", "line-count")
		if res.LineCount < res.Expected {
			failures++
			tc.CreateElement("failure").CreateAttr("message",
				fmt.Sprintf("ledger holds %d item(s) but the program expects %d", res.LineCount, res.Expected))
		}
	}

	for _, el := range []*etree.Element{suites, suite} {
		el.CreateAttr("tests", strconv.Itoa(tests))
		el.CreateAttr("failures", strconv.Itoa(failures))
	}
	suite.CreateAttr("skipped", strconv.Itoa(skipped))

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func itemCaseName(c pipeline.ItemCheck) string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return c.Index
	}
	return c.Index + " " + name
}
