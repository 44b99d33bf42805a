// sfy-fleet runs one discovery over the hub and prints the fleet, most recent
// contact first.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	container "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Container"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// errRunFailed marks a discovery that ended without a fleet
var errRunFailed = errors.New("discovery failed")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	cfg := &config.Config{
		Hub:     config.LoadHubConfig(),
		Logging: config.LoadLoggingConfig(),
		Store:   config.StoreConfig{Type: config.StoreMemory},
	}
	// stdout carries the table
	cfg.Logging.Output = "stderr"

	var asJSON bool
	var runTimeout time.Duration

	flagSet := pflag.NewFlagSet("sfy-fleet", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Hub.URL, "hub-url", cfg.Hub.URL, "data hub base URL (env HUB_URL)")
	flagSet.StringVar(&cfg.Hub.Token, "token", cfg.Hub.Token, "hub read token (env HUB_TOKEN)")
	flagSet.DurationVar(&cfg.Hub.Timeout, "timeout", cfg.Hub.Timeout, "timeout of each hub request")
	flagSet.IntVar(&cfg.Hub.MaxRetries, "retries", cfg.Hub.MaxRetries, "retries per hub request (0: single attempt)")
	flagSet.DurationVar(&runTimeout, "run-timeout", 10*time.Minute, "timeout of the whole discovery")
	flagSet.StringVar(&cfg.Logging.Level, "log-level", "warn", "log level written to stderr")
	flagSet.BoolVar(&asJSON, "json", false, "print the fleet as JSON")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg.Discovery.RunTimeout = runTimeout
	if err := cfg.Hub.Validate(); err != nil {
		return err
	}

	log := logger.NewLogger(&cfg.Logging)
	ctr := container.NewContainerFromConfig(cfg, log)
	defer ctr.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := ctr.GetDiscoveryService(ctx)
	if err != nil {
		return err
	}

	runID, err := svc.Trigger(sfymodels.TriggerCLI)
	if err != nil {
		return err
	}

	final, err := svc.Wait(ctx, runID)
	if err != nil {
		return err
	}

	if asJSON {
		if err := writeJSON(os.Stdout, final); err != nil {
			return err
		}
	} else if err := writeTable(os.Stdout, final.Views()); err != nil {
		return err
	}

	if final.State != sfymodels.RunCompleted {
		return fmt.Errorf("%w: %s %s", errRunFailed, final.State, final.Error)
	}
	if n := len(final.Failures); n > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d buoys failed to load\n", n, len(final.Buoys))
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `sfy-fleet discovers all buoys on the data hub, loads the newest axl
package of each and prints the fleet with the most recent contact first.

Usage:
  sfy-fleet [flags]

Flags:
%s`, flagSet.FlagUsages())
}
