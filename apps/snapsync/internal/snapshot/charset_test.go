package snapshot_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

// fixedDetector always reports the same detection.
type fixedDetector struct {
	det snapshot.Detection
	ok  bool
}

func (d fixedDetector) Detect([]byte) (snapshot.Detection, bool) { return d.det, d.ok }

func detect(charset string, confidence float64) fixedDetector {
	return fixedDetector{det: snapshot.Detection{Charset: charset, Confidence: confidence}, ok: true}
}

func TestDecode_HighConfidenceUsesDetectedEncoding(t *testing.T) {
	r := snapshot.NewResolver(detect("windows-1252", 0.9), "", 0, discardLogger())

	entry, err := r.Decode("u", []byte("caf\xe9"))

	require.NoError(t, err)
	assert.Equal(t, "café", entry.Text)
	assert.Equal(t, "windows-1252", entry.Encoding)
	assert.InDelta(t, 0.9, entry.Confidence, 1e-9)
	assert.Equal(t, "u", entry.URL)
}

func TestDecode_LowConfidenceFallsBackToUTF8(t *testing.T) {
	log, buf := captureLogger()
	r := snapshot.NewResolver(detect("windows-1252", 0.2), "", 0, log)

	entry, err := r.Decode("u", []byte("naïve"))

	require.NoError(t, err)
	assert.Equal(t, "naïve", entry.Text)
	assert.Equal(t, "utf-8", entry.Encoding)
	assert.Contains(t, buf.String(), "low confidence")
}

func TestDecode_LowConfidenceAttemptsFallbackBeforeDropping(t *testing.T) {
	log, buf := captureLogger()
	r := snapshot.NewResolver(detect("windows-1252", 0.3), "utf-8", 0.5, log)

	_, err := r.Decode("u", []byte("caf\xe9"))

	var decErr *snapshot.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "utf-8", decErr.Encoding, "the fallback encoding was the one attempted")
	assert.Contains(t, err.Error(), "invalid utf-8 at byte 3")
	out := buf.String()
	assert.Less(t, strings.Index(out, "low confidence"), strings.Index(out, "unicode decode error"))
}

func TestDecode_NoCandidateUsesFallback(t *testing.T) {
	r := snapshot.NewResolver(fixedDetector{}, "iso-8859-1", 0, discardLogger())

	entry, err := r.Decode("u", []byte("\xa9 2024"))

	require.NoError(t, err)
	assert.Equal(t, "© 2024", entry.Text)
	assert.Equal(t, "iso-8859-1", entry.Encoding)
}

func TestDecode_ConfidenceAtThresholdIsTrusted(t *testing.T) {
	r := snapshot.NewResolver(detect("windows-1252", 0.5), "", 0.5, discardLogger())

	entry, err := r.Decode("u", []byte("caf\xe9"))

	require.NoError(t, err)
	assert.Equal(t, "windows-1252", entry.Encoding)
}

func TestDecode_UnknownEncoding(t *testing.T) {
	r := snapshot.NewResolver(detect("x-klingon", 0.99), "", 0, discardLogger())

	_, err := r.Decode("u", []byte("qapla'"))

	var decErr *snapshot.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "x-klingon", decErr.Encoding)
}

func TestDecode_ShiftJIS(t *testing.T) {
	r := snapshot.NewResolver(detect("Shift_JIS", 1), "", 0, discardLogger())

	entry, err := r.Decode("u", []byte{0x82, 0xa0})

	require.NoError(t, err)
	assert.Equal(t, "あ", entry.Text)
}

func TestDecode_InvalidShiftJIS(t *testing.T) {
	r := snapshot.NewResolver(detect("Shift_JIS", 1), "", 0, discardLogger())

	_, err := r.Decode("u", []byte{0x82, 0x20})

	var decErr *snapshot.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "Shift_JIS", decErr.Encoding)
}

func TestDecode_UTF16KeepsEncodedReplacementCharacter(t *testing.T) {
	r := snapshot.NewResolver(detect("UTF-16LE", 1), "", 0, discardLogger())

	// "a\uFFFDb" where U+FFFD is really present in the file.
	entry, err := r.Decode("u", []byte{0x61, 0x00, 0xfd, 0xff, 0x62, 0x00})

	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", entry.Text)
}

func TestDecode_UTF16InvalidInputIsRejected(t *testing.T) {
	r := snapshot.NewResolver(detect("UTF-16LE", 1), "", 0, discardLogger())

	cases := map[string][]byte{
		"odd length":     {0x61, 0x00, 0x62},
		"lone surrogate": {0x61, 0x00, 0x00, 0xd8},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Decode("u", input)

			var decErr *snapshot.DecodeError
			require.ErrorAs(t, err, &decErr)
		})
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	r := snapshot.NewResolver(fixedDetector{}, "", 0, discardLogger())

	entry, err := r.Decode("u", nil)

	require.NoError(t, err)
	assert.Empty(t, entry.Text)
}

func TestDecode_LogsPreviewAtDebug(t *testing.T) {
	log, buf := captureLogger()
	r := snapshot.NewResolver(detect("utf-8", 1), "", 0, log)

	_, err := r.Decode("u", []byte(strings.Repeat("x", 600)))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"preview":"`+strings.Repeat("x", 500)+`..."`)
}

func TestChardetDetector_UTF8(t *testing.T) {
	d := snapshot.NewChardetDetector()

	det, ok := d.Detect([]byte("Grüße aus Köln – schöne Tage, café olé, naïve façade"))

	require.True(t, ok)
	assert.Equal(t, "UTF-8", det.Charset)
	assert.GreaterOrEqual(t, det.Confidence, 0.8)
	assert.LessOrEqual(t, det.Confidence, 1.0)
}

func TestChardetDetector_WithResolver(t *testing.T) {
	text := "Grüße aus Köln – schöne Tage, café olé"
	r := snapshot.NewResolver(snapshot.NewChardetDetector(), "", 0, discardLogger())

	entry, err := r.Decode("u", []byte(text))

	require.NoError(t, err)
	assert.Equal(t, text, entry.Text)
}
