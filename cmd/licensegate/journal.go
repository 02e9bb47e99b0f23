package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/CloudNativeWorks/cnw-license-gate/licensegate"
	"github.com/CloudNativeWorks/cnw-license-gate/licensegate/journal"
)

var (
	journalLimit int
	journalPrune time.Duration
)

// errMemoryJournal is returned by the journal command: a memory journal only
// lives as long as the process that recorded into it.
var errMemoryJournal = errors.New("the memory journal is not persisted between runs: use the postgres or mongo driver")

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recorded checkouts for the configured product",
	Long: `List recorded checkouts for the configured product.

Requires a persistent journal (LICENSEGATE_JOURNAL_DRIVER=postgres or mongo).
The memory driver only lasts for a single status run and is rejected here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := licensegate.LoadConfig()
		if err != nil {
			return err
		}
		product, err := cfg.Product()
		if err != nil {
			return err
		}
		if cfg.JournalDriver == "memory" {
			return errMemoryJournal
		}
		j, closeJournal, err := openJournal(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeJournal()
		if j == nil {
			return fmt.Errorf("no journal configured: set LICENSEGATE_JOURNAL_DRIVER")
		}

		if journalPrune > 0 {
			n, err := j.Prune(ctx, product.SKU, journalPrune)
			if err != nil {
				return err
			}
			logger.Info().Int("removed", n).Str("product_sku", product.SKU).Msg("Pruned checkout journal")
		}

		entries, err := j.List(ctx, product.SKU, journalLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECKED OUT\tNODE\tGRANTED\tEXPIRATION\tDANGLING\tERROR")
		for _, e := range entries {
			node := e.Node
			if len(node) > 12 {
				node = node[:12]
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%t\t%s\n",
				e.CheckedOutAt.UTC().Format(time.RFC3339), node, e.Granted, e.Expiration, e.Dangling(), e.Error)
		}
		return w.Flush()
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "maximum number of entries to list (0 = all)")
	journalCmd.Flags().DurationVar(&journalPrune, "prune", 0, "remove entries older than this before listing")
}

// openJournal opens the configured checkout journal. It returns a nil
// journal when none is configured.
func openJournal(ctx context.Context, cfg licensegate.Config) (journal.Journal, func(), error) {
	noop := func() {}
	switch cfg.JournalDriver {
	case "":
		return nil, noop, nil
	case "memory":
		return journal.NewMemoryJournal(), noop, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.JournalDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres journal: %w", err)
		}
		j, err := journal.NewPostgresJournal(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return j, pool.Close, nil
	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.JournalDSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo journal: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		j, err := journal.NewMongoJournal(ctx, client.Database(cfg.JournalDatabase))
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return j, disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal driver %q", cfg.JournalDriver)
	}
}
