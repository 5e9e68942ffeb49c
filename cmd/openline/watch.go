package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	openline "github.com/openline-im/openline-go"
)

var watchMarkRead bool

func init() {
	watchCmd.Flags().BoolVar(&watchMarkRead, "mark-read", false, "Mark incoming messages as read")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Watch a conversation live",
	Long:  "Stream messages, reactions, read receipts, and presence changes for a conversation until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := args[0]

		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		me := identity(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt := newSDKClient(cfg).Realtime(&openline.RealtimeConfig{AutoReconnect: true})
		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer rt.Disconnect()

		stream := openline.NewMessageStream(rt, me)
		reactions := openline.NewReactionTracker(rt, me)
		receipts := openline.NewReadReceiptTracker(rt, me)
		presence := openline.NewPresenceTracker(rt, me)

		if err := stream.Activate(ctx, conversationID); err != nil {
			return fmt.Errorf("failed to join conversation: %w", err)
		}
		defer stream.Deactivate()
		if err := reactions.Activate(ctx, conversationID); err != nil {
			return err
		}
		defer reactions.Deactivate()
		if err := receipts.Activate(ctx, conversationID); err != nil {
			return err
		}
		defer receipts.Deactivate()
		if err := presence.Activate(ctx); err != nil {
			return err
		}
		defer presence.Deactivate()

		msgSub := rt.OnNewMessage(func(m openline.Message) {
			if m.ConversationID != conversationID {
				return
			}
			fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.SenderName, m.Text)
			if watchMarkRead && m.SenderID != me.UserID {
				receipts.MarkAsRead(ctx, m.ID)
			}
		})
		defer msgSub.Cancel()

		readSub := rt.OnMessageRead(func(ev openline.MessageReadEvent) {
			fmt.Printf("  %s (message %s)\n", openline.ReadStatusText(receipts.Receipts(ev.MessageID)), ev.MessageID)
		})
		defer readSub.Cancel()

		reactSub := rt.OnReactionAdded(func(ev openline.ReactionAddedEvent) {
			fmt.Printf("  %s reacted %s to message %s\n", ev.Reaction.UserName, ev.Reaction.Emoji, ev.MessageID)
			for _, c := range reactions.Summary(ev.MessageID) {
				fmt.Printf("    %s %d\n", c.Emoji, c.Count)
			}
		})
		defer reactSub.Cancel()

		presSub := rt.OnPresenceUpdate(func(openline.PresenceEntry) {
			fmt.Println(openline.OnlineUsersText(presence.OnlineUsers()))
		})
		defer presSub.Cancel()

		connSub := rt.OnConnected(func() {
			fmt.Println("-- connected --")
		})
		defer connSub.Cancel()
		dropSub := rt.OnDisconnected(func(code int, reason string) {
			fmt.Printf("-- disconnected (%d): %s --\n", code, reason)
		})
		defer dropSub.Cancel()

		fmt.Printf("Watching conversation %s as %s. Press Ctrl-C to stop.\n", conversationID, me.UserName)
		<-ctx.Done()
		fmt.Println()
		return nil
	},
}
