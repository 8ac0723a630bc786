package logbuffer

import "encoding/base64"

// formatExport renders one entry the way the platform log sink expects:
// preformatted text passes through unchanged; compact (CBOR) entries are
// base64-wrapped in "ML:...:" markers so a text-only log viewer can still
// carry them, matching the original implementation's export path.
func formatExport(e Entry) []byte {
	if e.Synthetic || e.Header.RecordType == RecordPreformatted {
		return e.Text
	}
	encoded := base64.StdEncoding.EncodeToString(e.Text)
	return []byte("ML:" + encoded + ":")
}
