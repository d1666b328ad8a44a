package transcript

import (
	"encoding/json"
	"os"
)

// WriteSidecar persists the canonical transcript as a pretty-printed JSON
// sidecar at path, UTF-8, 2-space indent, per the transcript sidecar format.
func WriteSidecar(path string, t Transcript) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteText writes the plain-text transcript body to path.
func WriteText(path string, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}
