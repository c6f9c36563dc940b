package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"geminichat/internal/dispatch"
)

func newStreamCmd(e *env) *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect the generation task streams",
	}

	streamCmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "Show delivered but unacknowledged tasks per partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := openRedis(e.cfg, e.log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			streams := dispatch.PartitionStreams(e.cfg.DispatchStream, e.cfg.DispatchPartitions)
			consumer := dispatch.NewConsumer(rdb, dispatch.ConsumerOptions{Group: e.cfg.DispatchGroup, Name: "chatctl"}, e.log)
			pending, err := consumer.Pending(cmd.Context(), streams)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var total int64
			for _, s := range streams {
				n := pending[s]
				total += n
				line := keyColor
				if n > 0 {
					line = warnColor
				}
				line.Fprintf(out, "%-24s", s)
				fmt.Fprintf(out, " %d\n", n)
			}
			fmt.Fprintf(out, "total pending: %d\n", total)
			return nil
		},
	})

	return streamCmd
}
