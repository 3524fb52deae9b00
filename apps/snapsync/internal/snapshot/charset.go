package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// Encoding fallback defaults.
const (
	DefaultFallbackEncoding = "utf-8"
	DefaultMinConfidence    = 0.5
	previewChars            = 500
)

// Detection is a candidate encoding and its confidence in [0,1].
type Detection struct {
	Charset    string
	Confidence float64
}

// Detector guesses the character encoding of raw bytes. ok is false when
// no candidate was found.
type Detector interface {
	Detect(b []byte) (d Detection, ok bool)
}

// ChardetDetector is the statistical Detector backed by saintfish/chardet.
type ChardetDetector struct {
	d *chardet.Detector
}

// NewChardetDetector returns a text-mode chardet Detector.
func NewChardetDetector() *ChardetDetector {
	return &ChardetDetector{d: chardet.NewTextDetector()}
}

// Detect implements Detector. chardet reports confidence as 0-100.
func (c *ChardetDetector) Detect(b []byte) (Detection, bool) {
	r, err := c.d.DetectBest(b)
	if err != nil || r == nil || r.Charset == "" {
		return Detection{}, false
	}
	conf := float64(r.Confidence) / 100
	if conf > 1 {
		conf = 1
	}
	return Detection{Charset: r.Charset, Confidence: conf}, true
}

// Resolver turns fetched bytes into text using detection with a fallback.
type Resolver struct {
	detector      Detector
	fallback      string
	minConfidence float64
	log           *slog.Logger
}

// NewResolver creates a Resolver. An empty fallback means UTF-8 and a
// non-positive minConfidence means DefaultMinConfidence.
func NewResolver(detector Detector, fallback string, minConfidence float64, log *slog.Logger) *Resolver {
	if fallback == "" {
		fallback = DefaultFallbackEncoding
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Resolver{detector: detector, fallback: fallback, minConfidence: minConfidence, log: log}
}

// Decode detects the encoding of b and decodes it.
//
// When detection finds nothing or its confidence is below the threshold the
// fallback encoding is used instead; the decode is still attempted. Bytes that
// do not decode cleanly under the chosen encoding produce a *DecodeError.
func (r *Resolver) Decode(url string, b []byte) (DecodedEntry, error) {
	det, ok := r.detector.Detect(b)
	charset := det.Charset
	if !ok || det.Confidence < r.minConfidence {
		r.log.Warn("low confidence in detected encoding, falling back",
			"url", url, "detected", det.Charset, "confidence", det.Confidence, "fallback", r.fallback)
		charset = r.fallback
	}
	r.log.Info("detected encoding", "url", url, "encoding", charset, "confidence", det.Confidence)

	text, err := decodeStrict(charset, b)
	if err != nil {
		decErr := &DecodeError{URL: url, Encoding: charset, Err: err}
		r.log.Error("unicode decode error", "url", url, "encoding", charset, "error", err)
		return DecodedEntry{}, decErr
	}

	r.log.Debug("decoded content", "url", url, "preview", preview(text))
	return DecodedEntry{URL: url, Text: text, Encoding: charset, Confidence: det.Confidence}, nil
}

var errReplacement = errors.New("input contains byte sequences invalid in this encoding")

func decodeStrict(charset string, b []byte) (string, error) {
	if isUTF8(charset) {
		if !utf8.Valid(b) {
			return "", fmt.Errorf("invalid utf-8 at byte %d", firstInvalidUTF8(b))
		}
		return string(b), nil
	}

	enc, err := lookupEncoding(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !roundTrips(enc, out, b) {
		return "", errReplacement
	}
	return string(out), nil
}

// roundTrips reports whether re-encoding decoded reproduces the input
// exactly. x/text decoders substitute U+FFFD for invalid sequences, so a
// U+FFFD in the output is only genuine when it encodes back to the same bytes.
func roundTrips(enc encoding.Encoding, decoded, input []byte) bool {
	back, err := enc.NewEncoder().Bytes(decoded)
	return err == nil && bytes.Equal(back, input)
}

// chardet labels that neither index recognises.
var charsetAliases = map[string]string{
	"gb-18030": "gb18030",
}

func lookupEncoding(charset string) (encoding.Encoding, error) {
	if alias, ok := charsetAliases[strings.ToLower(charset)]; ok {
		charset = alias
	}
	if enc, err := htmlindex.Get(charset); err == nil && enc != nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", charset)
	}
	return enc, nil
}

func isUTF8(charset string) bool {
	switch strings.ToLower(strings.ReplaceAll(charset, "_", "-")) {
	case "utf-8", "utf8", "ascii", "us-ascii":
		return true
	default:
		return false
	}
}

func firstInvalidUTF8(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

func preview(s string) string {
	n := 0
	for i := range s {
		if n == previewChars {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
