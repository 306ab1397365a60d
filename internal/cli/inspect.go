package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/layer"
)

// inspectCommand lists the layers an upload would contribute without reading
// loose files or rendering anything.
func (c *CLI) inspectCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <file-or-dir>...",
		Short: "List the layers found in Gerber files or ZIP archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.Context(), cmd.OutOrStdout(), args, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the manifest as JSON")

	return cmd
}

func (c *CLI) runInspect(ctx context.Context, w io.Writer, args []string, asJSON bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	items, err := fileItems(args)
	if err != nil {
		return err
	}

	set, err := cfg.Aggregator(loggerFromContext(ctx)).Discover(ctx, items)
	var empty *aggregate.EmptyLayerSetError
	if err != nil && !stderrors.As(err, &empty) {
		return err
	}

	if asJSON {
		m := set.Manifest
		if m == nil {
			m = layer.Manifest{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	if empty != nil {
		printWarnings(empty.Warnings)
		printInfo("No recognized layers")
		printDetail("Accepted extensions: %s", strings.Join(cfg.Layers.Allowed, " "))
		return nil
	}
	fmt.Fprintln(w, manifestTable(set.Manifest, layer.ClientConfig{}))
	printWarnings(set.Warnings)
	printSuccess("Found %s", layerSummary(set.Manifest))
	printNextStep("Render them", appName+" render "+strings.Join(args, " "))
	return nil
}
