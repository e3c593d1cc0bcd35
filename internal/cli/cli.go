package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeDispatch = "dispatch-service"
	ModeWorker   = "worker-client"
	ModeCustomer = "customer-client"
	ModeToken    = "token"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeDispatch, "dispatch", "hub", "d":
		return ModeDispatch, true
	case ModeWorker, "worker", "w":
		return ModeWorker, true
	case ModeCustomer, "customer", "c":
		return ModeCustomer, true
	case ModeToken, "t":
		return ModeToken, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `dispatch-service --port=3000`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<service>")
	}

	if m, ok := isKnownMode(mode); ok {
		mode = m
	}

	return mode, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./service-hub --mode=<service> [flags]

Services (modes):
  dispatch-service   Booking dispatch hub: REST API, WebSocket gateway, relay
  worker-client      Worker session: offer alerts, acceptance, navigation flow
  customer-client    Customer session: booking requests and live tracking
  token              Mint a development JWT for a seeded user

Examples:
  ./service-hub --mode=dispatch-service --max-concurrent=100
  ./service-hub --mode=worker-client --worker-id=<uuid> --token=<jwt>
  ./service-hub --mode=customer-client --customer-id=<uuid> --token=<jwt>
  ./service-hub --mode=token --user-id=<uuid> --role=WORKER`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./service-hub --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
