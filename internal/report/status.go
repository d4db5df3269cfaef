// Package report renders progress and verification results for the terminal
// and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/fulmenhq/bundlepress/internal/assets"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/pkg/ascii"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is an output format for reports.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts a format name, case-insensitively. "md" and "yml" are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Item states shown in status reports.
const (
	StateCommitted = "committed"
	StateUploaded  = "uploaded"
	StatePending   = "pending"
)

// ItemRow is one line of the per-item status table.
type ItemRow struct {
	Index string `json:"index" yaml:"index" toml:"index"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	State string `json:"state" yaml:"state" toml:"state"`
	Link  string `json:"link,omitempty" yaml:"link,omitempty" toml:"link,omitempty"`
}

// Status is the summary of a progress document.
type Status struct {
	Env              string          `json:"env" yaml:"env" toml:"env"`
	CacheName        string          `json:"cacheName" yaml:"cacheName" toml:"cacheName"`
	RunID            string          `json:"runId" yaml:"runId" toml:"runId"`
	Program          string          `json:"program,omitempty" yaml:"program,omitempty" toml:"program,omitempty"`
	PublishedAddress string          `json:"publishedAddress,omitempty" yaml:"publishedAddress,omitempty" toml:"publishedAddress,omitempty"`
	StartDate        string          `json:"startDate,omitempty" yaml:"startDate,omitempty" toml:"startDate,omitempty"`
	Counts           progress.Counts `json:"counts" yaml:"counts" toml:"counts"`
	Items            []ItemRow       `json:"items" yaml:"items" toml:"items"`
}

// NewStatus summarises doc. Items follow ledger slot order.
func NewStatus(doc *progress.Document) Status {
	s := Status{
		Env:              doc.Env,
		CacheName:        doc.CacheName,
		RunID:            doc.RunID,
		Program:          doc.Program.Identity,
		PublishedAddress: doc.PublishedAddress,
		Counts:           doc.Counts(),
		Items:            make([]ItemRow, 0, len(doc.Items)),
	}
	if t, ok := doc.StartTime(); ok {
		s.StartDate = t.UTC().Format(time.RFC1123)
	}
	for _, k := range doc.Keys() {
		r := doc.Items[k]
		s.Items = append(s.Items, ItemRow{Index: k, Name: r.DisplayName, State: itemState(r), Link: r.ContentLink})
	}
	return s
}

func itemState(r progress.Record) string {
	switch {
	case r.Committed && r.Uploaded():
		return StateCommitted
	case r.Uploaded():
		return StateUploaded
	default:
		return StatePending
	}
}

// RenderStatus writes s to w in format f.
func RenderStatus(w io.Writer, s Status, f Format) error {
	switch f {
	case FormatText:
		_, err := io.WriteString(w, statusText(s))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(s)
	case FormatMarkdown:
		out, err := statusMarkdown(s)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}

func statusText(s Status) string {
	program := s.Program
	if program == "" {
		program = "not initialized"
	}
	lines := []string{
		fmt.Sprintf("Environment: %s", s.Env),
		fmt.Sprintf("Cache:       %s", s.CacheName),
		fmt.Sprintf("Program:     %s", program),
	}
	if s.PublishedAddress != "" {
		lines = append(lines, fmt.Sprintf("Publisher:   %s", s.PublishedAddress))
	}
	if s.StartDate != "" {
		lines = append(lines, fmt.Sprintf("Starts:      %s", s.StartDate))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Items: %d  committed: %d  uploaded: %d  pending: %d",
			s.Counts.Total, s.Counts.Committed, s.Counts.Uploaded, s.Counts.Pending),
	)

	var sb strings.Builder
	sb.WriteString(ascii.Box(lines))
	if len(s.Items) == 0 {
		return sb.String()
	}
	rows := [][]string{{"INDEX", "NAME", "STATE", "LINK"}}
	for _, it := range s.Items {
		link := it.Link
		if link == "" {
			link = "-"
		}
		rows = append(rows, []string{it.Index, ascii.TruncateForBox(it.Name, 32), it.State, link})
	}
	sb.WriteString("\n")
	sb.WriteString(ascii.Table(rows))
	return sb.String()
}

func statusMarkdown(s Status) (string, error) {
	tpl, err := assets.GetTemplate("status.md.hbs")
	if err != nil {
		return "", fmt.Errorf("failed to load status template: %w", err)
	}
	items := make([]map[string]interface{}, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, map[string]interface{}{
			"index": it.Index,
			"name":  it.Name,
			"state": it.State,
			"link":  it.Link,
		})
	}
	data := map[string]interface{}{
		"title":            fmt.Sprintf("Run status: %s/%s", s.Env, s.CacheName),
		"env":              s.Env,
		"cacheName":        s.CacheName,
		"program":          s.Program,
		"publishedAddress": s.PublishedAddress,
		"counts": map[string]interface{}{
			"total":     s.Counts.Total,
			"committed": s.Counts.Committed,
			"uploaded":  s.Counts.Uploaded,
			"pending":   s.Counts.Pending,
		},
		"items": items,
	}
	return raymond.Render(string(tpl), data)
}
