package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// writeReport writes collected diagnostics to outPath as an indented JSON array.
func writeReport(outPath string, events interface{}, stdout io.Writer) error {
	jb, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(outPath, append(jb, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintln(stdout, "Wrote report to "+outPath)
	return nil
}
