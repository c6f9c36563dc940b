package command

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"geminichat/internal/dispatch"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/shared"
)

func newTaskCmd(e *env) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage generation tasks",
	}

	var force bool
	redispatch := &cobra.Command{
		Use:   "redispatch <message-id>",
		Short: "Enqueue generation again for a user message",
		Long: `Enqueue generation again for a stored user message, for example after a
dispatch failure. A failed reply is cleared first so generation runs again.
Messages with a completed reply are skipped unless --force is given; the worker
still never writes a second reply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messageID, err := parseID(args[0])
			if err != nil {
				return err
			}
			db, err := openDB(e.cfg, e.log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			rdb, err := openRedis(e.cfg, e.log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			messages := repository.NewMessageRepository(db)
			msg, err := messages.GetByID(cmd.Context(), messageID)
			if err != nil {
				return fmt.Errorf("message %d: %w", messageID, err)
			}
			if msg.Role != shared.RoleUser {
				return fmt.Errorf("message %d is an %s message, only user messages are answered", messageID, msg.Role)
			}
			reply, err := messages.FindReply(cmd.Context(), messageID)
			switch {
			case errors.Is(err, shared.ErrNotFound):
			case err != nil:
				return err
			case reply.Status == shared.StatusFailed:
				if err := messages.DeleteFailedReply(cmd.Context(), messageID); err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
				warnColor.Fprintf(cmd.OutOrStdout(), "cleared failed reply %d\n", reply.ID)
			case !force:
				warnColor.Fprintf(cmd.OutOrStdout(), "message %d already has a reply, skipping (use --force)\n", messageID)
				return nil
			}

			dispatcher, err := dispatch.NewStreamDispatcher(rdb, dispatch.Options{
				Stream:     e.cfg.DispatchStream,
				Partitions: e.cfg.DispatchPartitions,
				MaxLen:     e.cfg.DispatchMaxLen,
				NodeID:     e.cfg.DispatchNodeID,
			})
			if err != nil {
				return err
			}
			if err := dispatcher.Enqueue(cmd.Context(), dispatch.Task{
				ChatroomID:      msg.ChatroomID,
				SourceMessageID: msg.ID,
				Content:         msg.Content,
			}); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ message %d queued on %s\n", messageID, dispatcher.StreamFor(msg.ChatroomID))
			return nil
		},
	}
	redispatch.Flags().BoolVar(&force, "force", false, "enqueue even if a reply exists")
	taskCmd.AddCommand(redispatch)

	return taskCmd
}
