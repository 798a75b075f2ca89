package console

import (
	"context"
	"io"
)

// Run executes the console CLI logic. It returns an exit code appropriate for os.Exit.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	return dispatchEvent(context.Background(), cfg, stdout, stderr)
}
