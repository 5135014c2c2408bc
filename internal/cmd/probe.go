package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"admission-gateway/middleware/ratelimit/domain"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Run one incr/expire round trip against the remote counter store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			store, closeStore, err := newCounterStore(cfg)
			if err != nil {
				return err
			}
			if closeStore != nil {
				defer func() { _ = closeStore() }()
			}
			if store == nil {
				_, _ = fmt.Fprintln(out, "backend: none (local window table)")
				return nil
			}

			key := domain.Key("rl:probe:" + uuid.NewString())
			start := time.Now()
			n, err := store.Incr(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("probe incr: %w", err)
			}
			if err := store.Expire(cmd.Context(), key, 10*time.Second); err != nil {
				return fmt.Errorf("probe expire: %w", err)
			}

			_, _ = fmt.Fprintf(out, "backend: %s\nkey: %s\ncount: %d\nlatency: %s\n",
				cfg.RemoteBackend(), key, n, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
