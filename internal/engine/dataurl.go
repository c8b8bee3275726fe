package engine

import "encoding/base64"

// encodeDataURI wraps raw PNG bytes as a data: URI, matching the
// Document.Screenshot field's documented "URL or data-URI" shape (§3).
func encodeDataURI(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}
