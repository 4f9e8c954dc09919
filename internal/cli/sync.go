package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand runs a single push-then-pull cycle and prints its result
// as JSON.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			eng, err := newEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.sync.ManualSync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
