package runner

import (
	"baypd-scraper/lib/serviceutil"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// ExitAllFailed is the exit code of a run in which every county failed.
const ExitAllFailed = 70

// Result is what happened to one county in a run.
type Result struct {
	ID      string
	Err     error
	Elapsed time.Duration
	// Detail summarizes what was produced, e.g. "312 cases".
	Detail string
}

// Outcome lists results in the order counties were requested.
type Outcome []Result

func (o Outcome) Failed() []string {
	var failed []string
	for _, r := range o {
		if r.Err != nil {
			failed = append(failed, r.ID)
		}
	}
	return failed
}

// Err maps the outcome to the exit status of the process: nil when every
// county succeeded, code 1 when some failed and ExitAllFailed when all did.
func (o Outcome) Err() error {
	failed := o.Failed()
	switch {
	case len(failed) == 0:
		return nil
	case len(failed) == len(o):
		return serviceutil.ExitError{
			Code:    ExitAllFailed,
			Message: fmt.Sprintf("every county failed: %s", strings.Join(failed, ", ")),
		}
	default:
		return serviceutil.ExitError{
			Code:    1,
			Message: fmt.Sprintf("%d of %d counties failed: %s", len(failed), len(o), strings.Join(failed, ", ")),
		}
	}
}

// WriteSummary renders the outcome as a table.
func (o Outcome) WriteSummary(w io.Writer, title string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"County", "Status", "Elapsed", "Detail"})
	for _, r := range o {
		status := "ok"
		detail := r.Detail
		if r.Err != nil {
			status = "failed"
			detail = firstLine(r.Err.Error())
		}
		t.AppendRow(table.Row{r.ID, status, r.Elapsed.Round(time.Millisecond), detail})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}

type docEntry struct {
	key   string
	value any
}

// Document is a JSON object that keeps its keys in insertion order.
type Document struct {
	entries []docEntry
}

func (d *Document) Set(key string, value any) {
	for i, e := range d.entries {
		if e.key == key {
			d.entries[i].value = value
			return
		}
	}
	d.entries = append(d.entries, docEntry{key: key, value: value})
}

func (d Document) Keys() []string {
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

func (d Document) Len() int {
	return len(d.entries)
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshal(e.key)
		if err != nil {
			return nil, err
		}
		value, err := marshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshal is json.Marshal without escaping "<", the "<10" placeholder is
// written as-is.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeIndented writes v as UTF-8 JSON indented by 2 spaces.
func EncodeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteOutput replaces dir/name with contents, creating dir. Readers of the
// file never see a partial write. An empty dir writes to stdout instead.
func WriteOutput(stdout io.Writer, dir, name string, contents []byte) error {
	if dir == "" {
		_, err := stdout.Write(contents)
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(contents)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
