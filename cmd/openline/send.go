package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	openline "github.com/openline-im/openline-go"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, text := args[0], args[1]

		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		rt := newSDKClient(cfg).Realtime(nil)
		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer rt.Disconnect()

		stream := openline.NewMessageStream(rt, identity(cfg))
		if err := stream.Activate(ctx, conversationID); err != nil {
			return fmt.Errorf("failed to join conversation: %w", err)
		}
		defer stream.Deactivate()

		if err := stream.Send(ctx, text); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		fmt.Printf("Message sent to conversation %s\n", conversationID)
		return nil
	},
}
