package command

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"geminichat/internal/quota"
)

func newQuotaCmd(e *env) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or reset a user's daily message quota",
	}

	quotaCmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show today's usage for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rdb, err := openRedis(e.cfg, e.log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			used, err := quota.NewRedisCounter(rdb).Current(cmd.Context(), userID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			out := cmd.OutOrStdout()
			keyColor.Fprintf(out, "%s\n", quota.Key(userID, now))
			fmt.Fprintf(out, "used:   %d / %d (basic limit)\n", used, e.cfg.BasicDailyLimit)
			fmt.Fprintf(out, "resets: %s\n", quota.NextReset(now).Format(time.RFC3339))
			return nil
		},
	})

	quotaCmd.AddCommand(&cobra.Command{
		Use:   "reset <user-id>",
		Short: "Clear today's counter for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rdb, err := openRedis(e.cfg, e.log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			if err := quota.NewRedisCounter(rdb).Reset(cmd.Context(), userID); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ quota reset for user %d\n", userID)
			return nil
		},
	})

	return quotaCmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
