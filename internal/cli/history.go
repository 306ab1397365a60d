package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stentech/gerberstack/pkg/history"
)

// historyCommand shows recent renders from the configured store.
func (c *CLI) historyCommand() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent renders",
		Long: `Show recent renders recorded by the configured history backend.

History is kept only when history.backend is set to memory, redis or mongo.
The memory backend lives inside a running server, so this command is only
useful with redis or mongo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return c.runHistory(cmd.Context(), limit, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of renders to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")

	return cmd
}

func (c *CLI) runHistory(ctx context.Context, limit int, asJSON bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Backend == history.BackendNone {
		printInfo("Render history is disabled")
		printDetail("Set history.backend to redis or mongo in the config file")
		return nil
	}

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	if asJSON {
		if recs == nil {
			recs = []*history.Record{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		printInfo("No renders recorded (%s)", history.Name(store))
		return nil
	}
	fmt.Println(historyTable(recs))
	printDetail("%d most recent from %s", len(recs), history.Name(store))
	return nil
}
