// Package cli implements the colconctl operator commands.
package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

// Streams are the command's standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// clientConfig holds environment defaults for flags.
type clientConfig struct {
	APIURL    string        `envconfig:"COLCON_API_URL" default:"http://localhost:3000/api"`
	LocalDB   string        `envconfig:"COLCON_LOCAL_DB" default:".colcon/local.db"`
	Timeout   time.Duration `envconfig:"COLCON_CLIENT_TIMEOUT" default:"10s"`
	RedisAddr string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
}

func loadClientConfig() clientConfig {
	var cfg clientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		// Malformed values fall back to defaults; flags can still override.
		slog.Default().Warn("invalid client environment", slog.Any("error", err))
		cfg = clientConfig{
			APIURL:    "http://localhost:3000/api",
			LocalDB:   ".colcon/local.db",
			Timeout:   10 * time.Second,
			RedisAddr: "127.0.0.1:6379",
		}
	}
	return cfg
}

// NewRootCmd builds the colconctl command tree.
func NewRootCmd(streams Streams) *cobra.Command {
	cfg := loadClientConfig()

	root := &cobra.Command{
		Use:   "colconctl",
		Short: "Operate the COLCON registration service",
		Long: `colconctl registers users against the COLCON API and manages the
background jobs of the registration worker.

Examples:
  colconctl register --email a@x.com           # prompts for the password
  colconctl jobs trigger snapshot --retain 7
  colconctl jobs stats`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	root.AddCommand(newRegisterCmd(cfg), newJobsCmd(cfg))
	return root
}
