package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/marmos91/staticd/internal/cli/output"
	"github.com/marmos91/staticd/pkg/api"
	"github.com/marmos91/staticd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusAPIHost string
	statusAPIPort int
)

// addAPIFlags registers the admin API address flags shared by commands
// that talk to a running server.
func addAPIFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&statusAPIHost, "api-host", "127.0.0.1", "Admin API host")
	cmd.Flags().IntVar(&statusAPIPort, "api-port", api.DefaultPort, "Admin API port")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of a running staticd server.

This command queries the admin API and displays the server state, pool
occupancy, connection counters and the cache gate.

Examples:
  # Check status (uses default settings)
  staticd status

  # Check status with custom API port
  staticd status --api-port 9081

  # Output as JSON
  staticd status --output json`,
	RunE: runStatus,
}

func init() {
	addAPIFlags(statusCmd)
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus is what the status command prints.
type ServerStatus struct {
	Running           bool   `json:"running" yaml:"running"`
	Message           string `json:"message" yaml:"message"`
	State             string `json:"state,omitempty" yaml:"state,omitempty"`
	Address           string `json:"address,omitempty" yaml:"address,omitempty"`
	Origin            string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Workers           int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	BusyWorkers       int    `json:"busy_workers" yaml:"busy_workers"`
	QueueDepth        int    `json:"queue_depth" yaml:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity,omitempty" yaml:"queue_capacity,omitempty"`
	ActiveConnections int32  `json:"active_connections" yaml:"active_connections"`
	Accepted          uint64 `json:"accepted" yaml:"accepted"`
	Rejected          uint64 `json:"rejected" yaml:"rejected"`
	Completed         uint64 `json:"completed" yaml:"completed"`
	Panicked          uint64 `json:"panicked" yaml:"panicked"`
	CacheEnabled      bool   `json:"cache_enabled" yaml:"cache_enabled"`
	CachedFile        string `json:"cached_file,omitempty" yaml:"cached_file,omitempty"`
}

// Headers implements output.TableRenderer.
func (s ServerStatus) Headers() []string {
	return []string{"Field", "Value"}
}

// Rows implements output.TableRenderer.
func (s ServerStatus) Rows() [][]string {
	if !s.Running {
		return [][]string{{"Status", "stopped"}, {"Message", s.Message}}
	}

	cached := s.CachedFile
	if cached == "" {
		cached = "-"
	}
	return [][]string{
		{"Status", s.State},
		{"Address", s.Address},
		{"Origin", s.Origin},
		{"Workers", fmt.Sprintf("%d/%d busy", s.BusyWorkers, s.Workers)},
		{"Queue", fmt.Sprintf("%d/%d", s.QueueDepth, s.QueueCapacity)},
		{"Active Connections", strconv.Itoa(int(s.ActiveConnections))},
		{"Accepted", strconv.FormatUint(s.Accepted, 10)},
		{"Rejected", strconv.FormatUint(s.Rejected, 10)},
		{"Completed", strconv.FormatUint(s.Completed, 10)},
		{"Panicked", strconv.FormatUint(s.Panicked, 10)},
		{"Cache", enabledString(s.CacheEnabled)},
		{"Cached File", cached},
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()

	status := queryStatus(ctx, newAPIClient())
	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(status)
}

func newAPIClient() *apiclient.Client {
	return apiclient.New("http://" + net.JoinHostPort(statusAPIHost, strconv.Itoa(statusAPIPort)))
}

// queryStatus never fails: an unreachable or misbehaving API is reported in
// the returned status.
func queryStatus(ctx context.Context, client *apiclient.Client) ServerStatus {
	d, err := client.Status(ctx)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return ServerStatus{Running: true, Message: "Server is running but status is unavailable: " + apiErr.Message}
		}
		return ServerStatus{Message: fmt.Sprintf("Server is not running (admin API unreachable at %s)", client.BaseURL())}
	}

	return ServerStatus{
		Running:           true,
		Message:           "Server is " + d.State.String(),
		State:             d.State.String(),
		Address:           d.Address,
		Origin:            d.Origin,
		Workers:           d.Workers,
		BusyWorkers:       d.BusyWorkers,
		QueueDepth:        d.QueueDepth,
		QueueCapacity:     d.QueueCapacity,
		ActiveConnections: d.ActiveConnections,
		Accepted:          d.Accepted,
		Rejected:          d.Rejected,
		Completed:         d.Completed,
		Panicked:          d.Panicked,
		CacheEnabled:      d.Cache.Enabled,
		CachedFile:        d.Cache.Key,
	}
}

func enabledString(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
