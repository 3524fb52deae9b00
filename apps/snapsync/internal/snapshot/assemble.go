package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	artifactIndent = "    "
	windowChars    = 10
)

// Snapshot is an insertion-ordered mapping from URL to decoded text.
type Snapshot struct {
	keys   []string
	values map[string]string
}

// NewSnapshot returns an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{values: make(map[string]string)}
}

// Set stores text under url. Re-setting a key keeps its original position.
func (s *Snapshot) Set(url, text string) {
	if _, ok := s.values[url]; !ok {
		s.keys = append(s.keys, url)
	}
	s.values[url] = text
}

// Get returns the text stored under url.
func (s *Snapshot) Get(url string) (string, bool) {
	v, ok := s.values[url]
	return v, ok
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.keys) }

// Keys returns the URLs in insertion order.
func (s *Snapshot) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// MarshalJSON encodes the snapshot as a JSON object in insertion order,
// leaving non-ASCII and HTML characters unescaped.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var out bytes.Buffer
	out.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			out.WriteByte(',')
		}
		for j, v := range []string{k, s.values[k]} {
			buf.Reset()
			if err := enc.Encode(v); err != nil {
				return nil, fmt.Errorf("encode %q: %w", k, err)
			}
			out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
			if j == 0 {
				out.WriteByte(':')
			}
		}
	}
	out.WriteByte('}')
	return out.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings, preserving key order.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("snapshot must be a JSON object")
	}
	fresh := NewSnapshot()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		fresh.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = *fresh
	return nil
}

// Assemble builds a Snapshot from decoded entries in the order given.
func Assemble(entries []DecodedEntry) *Snapshot {
	s := NewSnapshot()
	for _, e := range entries {
		s.Set(e.URL, e.Text)
	}
	return s
}

var controlEscapes = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`)

// Sanitize returns a copy with trimmed keys and literal newline, carriage-return
// and tab characters in values replaced by their two-character escapes.
func Sanitize(s *Snapshot) *Snapshot {
	out := NewSnapshot()
	for _, k := range s.keys {
		out.Set(strings.TrimSpace(k), controlEscapes.Replace(s.values[k]))
	}
	return out
}

// Serialize renders the snapshot as pretty-printed JSON with a trailing newline.
func Serialize(s *Snapshot) ([]byte, error) {
	compact, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", artifactIndent); err != nil {
		return nil, fmt.Errorf("indent snapshot: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Validate parses data as JSON. On failure it logs the position and a short
// window of the offending text and returns a *ValidationError.
func Validate(data []byte, log *slog.Logger) error {
	var v any
	err := json.Unmarshal(data, &v)
	if err == nil {
		return nil
	}

	offset := int64(len(data))
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}

	line, col := lineColumn(data, offset)
	verr := &ValidationError{
		Line:   line,
		Column: col,
		Offset: offset,
		Window: window(data, offset),
		Err:    err,
	}
	log.Error("snapshot JSON failed to parse",
		"line", verr.Line, "column", verr.Column, "offset", verr.Offset,
		"window", verr.Window, "error", err)
	return verr
}

// WriteArtifact writes the serialized snapshot to path, replacing any previous
// contents, and returns the bytes written.
func WriteArtifact(path string, s *Snapshot) ([]byte, error) {
	data, err := Serialize(s)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create artifact %s: %w", path, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close() //nolint:errcheck,gosec // write error takes precedence
		return nil, fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close artifact %s: %w", path, err)
	}
	return data, nil
}

// lineColumn converts a byte offset to a 1-based line and rune column.
func lineColumn(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if offset < 0 {
		offset = 0
	}
	head := data[:offset]
	line := bytes.Count(head, []byte("\n")) + 1
	lineStart := bytes.LastIndexByte(head, '\n') + 1
	col := utf8.RuneCount(head[lineStart:]) + 1
	return line, col
}

// window returns up to windowChars runes around offset, centred where the
// input allows.
func window(data []byte, offset int64) string {
	runes := []rune(string(data))
	pos := utf8.RuneCount(data[:min(max(offset, 0), int64(len(data)))])
	start := max(min(pos-windowChars/2, len(runes)-windowChars), 0)
	end := min(start+windowChars, len(runes))
	return string(runes[start:end])
}
