package console

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mrlm-net/eventbeacon/internal/config"
	"github.com/mrlm-net/eventbeacon/pkg/dispatch"
)

// consoleConfig holds parsed CLI options for console package
type consoleConfig struct {
	Domain       string
	Transport    dispatch.Transport
	Fields       dispatch.Fields
	Timeout      time.Duration
	QueueSize    int
	DryRun       bool
	Output       string
	OutFile      string
	OTelEndpoint string
	Action       string
}

// parseFlags loads EVENTBEACON_* defaults from the environment, then parses
// CLI args over them.
func parseFlags(args []string, stderr io.Writer) (consoleConfig, error) {
	var env config.Sender
	if err := config.ParseEnv(&env); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return consoleConfig{}, err
	}

	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.SetOutput(stderr)

	domainFlag := fs.String("domain", env.Domain, "backend domain (default "+dispatch.DefaultDomain+")")
	transportFlag := fs.String("transport", env.Transport, "transport: image|beacon")
	pid := fs.String("pid", "", "placement id")
	cid := fs.String("cid", "", "campaign id")
	reqID := fs.String("uuid", uuid.NewString(), "request correlation id")
	cre := fs.String("cre", "", "creative id")
	timeout := fs.Duration("timeout", env.Timeout, "how long to wait for the send to complete")
	queueSize := fs.Int("queue-size", env.QueueSize, "beacon queue size")
	dryRun := fs.Bool("dry-run", false, "If true, don't perform network requests; only show what would be sent")
	outputFlagShort := fs.String("o", "json", "diagnostics output: json|file")
	outputFlag := fs.String("output", "json", "diagnostics output: json|file")
	outFileFlag := fs.String("out-file", "./eventbeacon-report.json", "output path when using file")

	if err := fs.Parse(args); err != nil {
		return consoleConfig{}, err
	}

	outputChoice := *outputFlag
	if outputChoice == "json" && *outputFlagShort != "json" {
		outputChoice = *outputFlagShort
	}
	if outputChoice != "json" && outputChoice != "file" {
		fmt.Fprintf(stderr, "unknown output %q, expected json|file\n", outputChoice)
		return consoleConfig{}, fmt.Errorf("invalid output")
	}

	flagArgs := fs.Args()
	if len(flagArgs) == 0 {
		fmt.Fprintf(stderr, "Usage: console [flags] action\n\n")
		fs.PrintDefaults()
		return consoleConfig{}, fmt.Errorf("missing action")
	}

	tr, err := dispatch.ParseTransport(*transportFlag)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return consoleConfig{}, err
	}
	domain, err := normalizeDomain(*domainFlag)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return consoleConfig{}, err
	}

	cfg := consoleConfig{
		Domain:       domain,
		Transport:    tr,
		Fields:       dispatch.Fields{PID: *pid, CID: *cid, UUID: *reqID, CRE: *cre},
		Timeout:      *timeout,
		QueueSize:    *queueSize,
		DryRun:       *dryRun,
		Output:       outputChoice,
		OutFile:      *outFileFlag,
		OTelEndpoint: env.OTelEndpoint,
		Action:       flagArgs[0],
	}
	return cfg, nil
}
