package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult пишет v как JSON либо text как есть.
func printResult(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
