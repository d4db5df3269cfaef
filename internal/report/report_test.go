package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/fulmenhq/bundlepress/internal/pipeline"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleDoc() *progress.Document {
	doc := progress.NewDocument("devnet", "temp")
	doc.Program.Identity = "program-abc"
	doc.SetRecord("10", progress.Record{ContentLink: "https://arweave.net/j", DisplayName: "Bear #10", Committed: true})
	doc.SetRecord("2", progress.Record{ContentLink: "https://arweave.net/k", DisplayName: "Bear #2"})
	doc.SetRecord("1", progress.Record{DisplayName: "Bear #1"})
	return doc
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "yml": FormatYAML, "toml": FormatTOML, "md": FormatMarkdown} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestNewStatus(t *testing.T) {
	s := NewStatus(sampleDoc())
	assert.Equal(t, progress.Counts{Total: 3, Committed: 1, Uploaded: 1, Pending: 1}, s.Counts)
	require.Len(t, s.Items, 3)
	assert.Equal(t, []string{"1", "2", "10"}, []string{s.Items[0].Index, s.Items[1].Index, s.Items[2].Index})
	assert.Equal(t, StatePending, s.Items[0].State)
	assert.Equal(t, StateUploaded, s.Items[1].State)
	assert.Equal(t, StateCommitted, s.Items[2].State)
}

func TestRenderStatusFormats(t *testing.T) {
	s := NewStatus(sampleDoc())

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderStatus(&buf, s, FormatText))
		out := buf.String()
		assert.Contains(t, out, "program-abc")
		assert.Contains(t, out, "committed: 1")
		assert.Contains(t, out, "INDEX")
		assert.Contains(t, out, "https://arweave.net/k")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderStatus(&buf, s, FormatJSON))
		var got Status
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, s, got)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderStatus(&buf, s, FormatYAML))
		var got Status
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, s.Counts, got.Counts)
		assert.Len(t, got.Items, 3)
	})

	t.Run("toml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderStatus(&buf, s, FormatTOML))
		var got Status
		require.NoError(t, toml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, s.Counts, got.Counts)
		assert.Equal(t, "program-abc", got.Program)
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderStatus(&buf, s, FormatMarkdown))
		out := buf.String()
		assert.Contains(t, out, "# Run status: devnet/temp")
		assert.Contains(t, out, "| Committed | 1 |")
		assert.Contains(t, out, "| 2 | Bear #2 | uploaded | https://arweave.net/k |")
		assert.Contains(t, out, "| 1 | Bear #1 | pending | - |")
	})
}

func TestRenderStatusEmptyMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderStatus(&buf, NewStatus(progress.NewDocument("devnet", "temp")), FormatMarkdown))
	assert.Contains(t, buf.String(), "not initialized")
	assert.NotContains(t, buf.String(), "## Items")
}

func TestSummary(t *testing.T) {
	ok := Summary{Phase: "upload", OK: true, Lines: []string{"3 uploaded"}, Rerun: "bundlepress upload ./assets"}.String()
	assert.Contains(t, ok, "Upload complete")
	assert.NotContains(t, ok, "Re-run")

	failed := Summary{Phase: "reconcile", Lines: []string{"1 batch failed"}, Rerun: "bundlepress reconcile"}.String()
	assert.Contains(t, failed, "Reconcile incomplete")
	assert.Contains(t, failed, "Re-run to resume: bundlepress reconcile")
	assert.True(t, strings.HasPrefix(failed, "┌"))
}

func verifySample() pipeline.VerifyResult {
	return pipeline.VerifyResult{
		Checks: []pipeline.ItemCheck{
			{Index: "0", Slot: 0, Name: "Bear #0", Link: "link-0", OK: true},
			{Index: "1", Slot: 1, Name: "Bear #1", Link: "link-1", Reason: "manifest body is empty"},
			{Index: "2", Slot: 2, Name: "Bear #2", Pending: true, Reason: "not committed"},
		},
		Passed: 1, Failed: 1, Pending: 1,
	}
}

func TestRenderVerifyText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderVerify(&buf, verifySample(), FormatText))
	out := buf.String()
	assert.Contains(t, out, "manifest body is empty")
	assert.Contains(t, out, "pending")
	assert.NotContains(t, out, "Bear #0")

	buf.Reset()
	require.NoError(t, RenderVerify(&buf, pipeline.VerifyResult{Ready: true}, FormatText))
	assert.Empty(t, buf.String())

	assert.Error(t, RenderVerify(&buf, verifySample(), FormatTOML))
}

func TestWriteJUnit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, verifySample()))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	suite := doc.FindElement("/testsuites/testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)
	assert.Nil(t, cases[0].SelectElement("failure"))
	require.NotNil(t, cases[1].SelectElement("failure"))
	assert.Equal(t, "manifest body is empty", cases[1].SelectElement("failure").SelectAttrValue("message", ""))
	assert.NotNil(t, cases[2].SelectElement("skipped"))
}

func TestWriteJUnitLineCount(t *testing.T) {
	res := pipeline.VerifyResult{
		Checks:    []pipeline.ItemCheck{{Index: "0", OK: true}},
		LineCount: 1, Expected: 3,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, res))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	root := doc.SelectElement("testsuites")
	assert.Equal(t, "2", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", root.SelectAttrValue("failures", ""))
	assert.Contains(t, buf.String(), "expects 3")
}
