package output

import (
	"encoding/json"
	"io"
	"os"
)

// PrintJSON writes v to stdout as indented JSON, for --json robot output.
func PrintJSON(v any) error {
	return EncodeJSON(os.Stdout, v)
}

// EncodeJSON writes v to w as indented JSON.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
