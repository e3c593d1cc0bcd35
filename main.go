package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	customerclient "service-hub/cmd/customer_client"
	dispatchservice "service-hub/cmd/dispatch_service"
	tokentool "service-hub/cmd/token"
	workerclient "service-hub/cmd/worker_client"
	"service-hub/internal/cli"
)

func main() {
	// quick path for global help
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	// parse mode and collect the remaining args for that mode
	mode, svcArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// run the service specified by the mode flag
	switch mode {

	case cli.ModeDispatch:
		fs := flag.NewFlagSet(cli.ModeDispatch, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the YAML configuration file")
		maxConc := fs.Int("max-concurrent", 100, "Maximum number of concurrent HTTP requests to process")
		cli.AttachUsage(fs, cli.ModeDispatch)

		if err := fs.Parse(svcArgs); err != nil {
			if err == flag.ErrHelp {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *maxConc < 1 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
			fs.Usage()
			os.Exit(2)
		}
		if err := dispatchservice.Run(ctx, *configPath, *maxConc); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeWorker:
		fs := flag.NewFlagSet(cli.ModeWorker, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the YAML configuration file")
		workerID := fs.String("worker-id", "", "Worker identifier (must match the token subject)")
		token := fs.String("token", "", "Bearer token for this worker")
		categories := fs.String("categories", "", "Comma-separated category names this worker claims")
		lat := fs.Float64("lat", 41.3111, "Initial latitude for the simulated GPS")
		lng := fs.Float64("lng", 69.2797, "Initial longitude for the simulated GPS")
		auto := fs.Bool("auto", false, "Accept the first offer and walk the full lifecycle")
		cli.AttachUsage(fs, cli.ModeWorker)

		if err := fs.Parse(svcArgs); err != nil {
			if err == flag.ErrHelp {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *workerID == "" || *token == "" {
			fmt.Fprintln(os.Stderr, "Error: --worker-id and --token are required")
			fs.Usage()
			os.Exit(2)
		}
		err := workerclient.Run(ctx, workerclient.Options{
			ConfigPath: *configPath,
			WorkerID:   *workerID,
			Token:      *token,
			Categories: *categories,
			StartLat:   *lat,
			StartLng:   *lng,
			Auto:       *auto,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeCustomer:
		fs := flag.NewFlagSet(cli.ModeCustomer, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the YAML configuration file")
		customerID := fs.String("customer-id", "", "Customer identifier (must match the token subject)")
		token := fs.String("token", "", "Bearer token for this customer")
		category := fs.String("category", "", "Create one booking in this category on startup")
		serviceName := fs.String("service", "", "Service name for the created booking")
		address := fs.String("address", "", "Street address for the created booking")
		lat := fs.Float64("lat", 0, "Latitude of the service location")
		lng := fs.Float64("lng", 0, "Longitude of the service location")
		price := fs.Float64("price", 0, "Offered price for the created booking")
		cli.AttachUsage(fs, cli.ModeCustomer)

		if err := fs.Parse(svcArgs); err != nil {
			if err == flag.ErrHelp {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *customerID == "" || *token == "" {
			fmt.Fprintln(os.Stderr, "Error: --customer-id and --token are required")
			fs.Usage()
			os.Exit(2)
		}
		err := customerclient.Run(ctx, customerclient.Options{
			ConfigPath:  *configPath,
			CustomerID:  *customerID,
			Token:       *token,
			Category:    *category,
			ServiceName: *serviceName,
			Address:     *address,
			Lat:         *lat,
			Lng:         *lng,
			Price:       *price,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeToken:
		fs := flag.NewFlagSet(cli.ModeToken, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the YAML configuration file")
		userID := fs.String("user-id", "", "Subject for the minted token")
		role := fs.String("role", "CUSTOMER", "Role claim: CUSTOMER, WORKER or ADMIN")
		cli.AttachUsage(fs, cli.ModeToken)

		if err := fs.Parse(svcArgs); err != nil {
			if err == flag.ErrHelp {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *userID == "" {
			fmt.Fprintln(os.Stderr, "Error: --user-id is required")
			fs.Usage()
			os.Exit(2)
		}
		if err := tokentool.Run(*configPath, *userID, *role); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	default:
		// should not happen because ParseMode validates known modes
		fmt.Fprintln(os.Stderr, "Error: unknown mode")
		os.Exit(2)
	}

	// tiny delay to let deferred logs flush on very fast exits
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}
