package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/staticd/internal/cli/output"
	"github.com/marmos91/staticd/pkg/api/handlers"
	"github.com/marmos91/staticd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var cacheOutput string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or toggle the cache of a running server",
	Long: `Inspect or toggle the cache of a running staticd server through the
admin API. Toggling here has the same effect as a request to /toggle_cache on
the file server itself.

Examples:
  # Show whether the cache is on and what it holds
  staticd cache show

  # Flip the cache gate
  staticd cache toggle`,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCache(cmd, func(ctx context.Context, c *apiclient.Client) (*handlers.CacheStatus, error) {
			return c.Cache(ctx)
		})
	},
}

var cacheToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle the cache on or off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCache(cmd, func(ctx context.Context, c *apiclient.Client) (*handlers.CacheStatus, error) {
			return c.ToggleCache(ctx)
		})
	},
}

func init() {
	addAPIFlags(cacheShowCmd)
	addAPIFlags(cacheToggleCmd)
	cacheCmd.PersistentFlags().StringVarP(&cacheOutput, "output", "o", "table", "Output format (table|json|yaml)")
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheToggleCmd)
}

// cacheView renders a CacheStatus.
type cacheView struct {
	handlers.CacheStatus `yaml:",inline"`
}

// Headers implements output.TableRenderer.
func (v cacheView) Headers() []string {
	return []string{"Field", "Value"}
}

// Rows implements output.TableRenderer.
func (v cacheView) Rows() [][]string {
	key := v.Key
	if key == "" {
		key = "-"
	}
	return [][]string{
		{"Cache", enabledString(v.Enabled)},
		{"Entries", strconv.Itoa(v.Entries)},
		{"Cached File", key},
	}
}

func runCache(cmd *cobra.Command, call func(context.Context, *apiclient.Client) (*handlers.CacheStatus, error)) error {
	format, err := output.ParseFormat(cacheOutput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	client := newAPIClient()
	cs, err := call(ctx, client)
	if err != nil {
		return fmt.Errorf("admin API at %s: %w", client.BaseURL(), err)
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(cacheView{CacheStatus: *cs})
}
