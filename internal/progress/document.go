package progress

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the document layout this package reads and writes.
const SchemaVersion = 1

// Program identifies the remote program instance every item of a run is bound to.
type Program struct {
	Identity string `json:"identity,omitempty"`
	UUID     string `json:"uuid,omitempty"`
	TxID     string `json:"txId,omitempty"`
}

// StoredFile is one media file as it was uploaded.
type StoredFile struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Placeholder string `json:"placeholder"`
}

// Record is the durable state of one bundle.
type Record struct {
	ContentLink string       `json:"contentLink,omitempty"`
	StoredFiles []StoredFile `json:"storedFiles,omitempty"`
	DisplayName string       `json:"displayName,omitempty"`
	Committed   bool         `json:"committed"`
}

// Uploaded reports whether the bundle has a content link.
func (r Record) Uploaded() bool { return r.ContentLink != "" }

// Document is the whole progress state of one (env, cache name) run.
type Document struct {
	SchemaVersion    int               `json:"schemaVersion"`
	RunID            string            `json:"runId"`
	Env              string            `json:"env"`
	CacheName        string            `json:"cacheName"`
	Program          Program           `json:"program"`
	Items            map[string]Record `json:"items"`
	Authority        string            `json:"authority,omitempty"`
	PublishedAddress string            `json:"publishedAddress,omitempty"`
	StartDate        int64             `json:"startDate,omitempty"`
}

// NewDocument returns an empty document with a fresh run id.
func NewDocument(env, cacheName string) *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.New().String(),
		Env:           env,
		CacheName:     cacheName,
		Items:         make(map[string]Record),
	}
}

// HasProgram reports whether the run is bound to a remote program.
func (d *Document) HasProgram() bool { return d.Program.Identity != "" }

// Record returns the record for index.
func (d *Document) Record(index string) (Record, bool) {
	r, ok := d.Items[index]
	return r, ok
}

// SetRecord stores r under index.
func (d *Document) SetRecord(index string, r Record) {
	if d.Items == nil {
		d.Items = make(map[string]Record)
	}
	d.Items[index] = r
}

// ResetRecord clears the content link and commit flag of index so the next
// upload and reconcile passes redo it.
func (d *Document) ResetRecord(index string) {
	r, ok := d.Items[index]
	if !ok {
		return
	}
	r.ContentLink = ""
	r.Committed = false
	d.Items[index] = r
}

// StartTime returns the configured sale start, if any.
func (d *Document) StartTime() (time.Time, bool) {
	if d.StartDate == 0 {
		return time.Time{}, false
	}
	return time.Unix(d.StartDate, 0).UTC(), true
}

// Register adds an empty record for every index not in the document yet, so
// a bundle holds its ledger slot before its upload succeeds. Adding keys can
// shift the slots of keys sorting after them; those lose their commit flag
// since the ledger holds them at their old slot. Register returns the keys
// whose slot moved.
func (d *Document) Register(indices []string) []string {
	before := d.Keys()
	added := false
	for _, idx := range indices {
		if _, ok := d.Items[idx]; ok {
			continue
		}
		d.SetRecord(idx, Record{})
		added = true
	}
	if !added {
		return nil
	}

	var moved []string
	for slot, k := range d.Keys() {
		if slot < len(before) && before[slot] == k {
			continue
		}
		r := d.Items[k]
		if !r.Uploaded() {
			continue
		}
		moved = append(moved, k)
		r.Committed = false
		d.Items[k] = r
	}
	return moved
}

// Keys returns item keys with integer keys first in numeric order, then the
// rest lexicographically. A key's position in this order is its ledger slot.
// Keys are never removed, so a slot only moves when Register inserts a key
// before it.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.Items))
	for k := range d.Items {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys sorts keys in place using the Keys ordering.
func SortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aErr := strconv.ParseUint(keys[i], 10, 64)
		b, bErr := strconv.ParseUint(keys[j], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			if a != b {
				return a < b
			}
			return keys[i] < keys[j]
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

// Pending returns keys that have no content link yet.
func (d *Document) Pending() []string {
	return d.filter(func(r Record) bool { return !r.Uploaded() })
}

// Uncommitted returns keys that are uploaded but not yet written to the ledger.
func (d *Document) Uncommitted() []string {
	return d.filter(func(r Record) bool { return r.Uploaded() && !r.Committed })
}

func (d *Document) filter(keep func(Record) bool) []string {
	var out []string
	for _, k := range d.Keys() {
		if keep(d.Items[k]) {
			out = append(out, k)
		}
	}
	return out
}

// Counts summarises item states.
type Counts struct {
	Total     int `json:"total" yaml:"total" toml:"total"`
	Committed int `json:"committed" yaml:"committed" toml:"committed"`
	Uploaded  int `json:"uploaded" yaml:"uploaded" toml:"uploaded"`
	Pending   int `json:"pending" yaml:"pending" toml:"pending"`
}

// Counts tallies items by state. Uploaded counts items with a link that are
// not committed yet.
func (d *Document) Counts() Counts {
	c := Counts{Total: len(d.Items)}
	for _, r := range d.Items {
		switch {
		case r.Committed && r.Uploaded():
			c.Committed++
		case r.Uploaded():
			c.Uploaded++
		default:
			c.Pending++
		}
	}
	return c
}
