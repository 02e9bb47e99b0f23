package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-license-gate/licensegate"
)

var statusJSON bool

var errInstallUnsupported = errors.New("license installation is not supported")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check out the entitlement and print the license state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		svc, cleanup, err := newService(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := svc.State(ctx)
		if err != nil {
			return err
		}
		return printState(cmd, state)
	},
}

var installCmd = &cobra.Command{
	Use:   "install [location...]",
	Short: "Attempt to install a license file (not supported)",
	RunE: func(cmd *cobra.Command, args []string) error {
		locations := make([]licensegate.Location, 0, len(args))
		for _, a := range args {
			locations = append(locations, licensegate.Location{ID: "file", Value: a})
		}
		// No authority round trip is needed to answer an install request.
		svc := licensegate.NewService(licensegate.NewCheckoutCache(nil, licensegate.DefaultProduct))
		res := svc.InstallLicense(locations...)
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return errInstallUnsupported
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the state as JSON")
}

func printState(cmd *cobra.Command, state licensegate.LicenseState) error {
	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	fmt.Fprintf(out, "Licensed:   %t\n", state.Valid)
	fmt.Fprintf(out, "License:    %s\n", state.Label)
	fmt.Fprintf(out, "Expires:    %s UTC\n", licensegate.FormatExpiration(state.ExpiresAt))
	fmt.Fprintf(out, "Days left:  %d\n", state.DaysLeft)
	return nil
}

// newService wires the licensing service from LICENSEGATE_* configuration.
func newService(ctx context.Context) (*licensegate.Service, func(), error) {
	cfg, err := licensegate.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	product, err := cfg.Product()
	if err != nil {
		return nil, nil, err
	}
	client, err := cfg.Client(licensegate.BreakerSettings{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	j, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []licensegate.CacheOption{
		licensegate.WithCacheLogger(logger),
		licensegate.WithFetchTimeout(cfg.FetchTimeout),
	}
	if j != nil {
		opts = append(opts, licensegate.WithJournal(j))
	}
	cache := licensegate.NewCheckoutCache(client, product, opts...)
	svc := licensegate.NewService(cache,
		licensegate.WithLogger(logger),
		licensegate.WithBuildInfo(licensegate.BuildInfo{Version: Version}),
		licensegate.WithIntegrationDetails(&licensegate.IntegrationDetails{Name: "cli"}),
	)
	return svc, closeJournal, nil
}
