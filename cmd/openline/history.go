package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	openline "github.com/openline-im/openline-go"
)

var (
	historyPages    int
	historyPageSize int
)

func init() {
	historyCmd.Flags().IntVar(&historyPages, "pages", 1, "Number of pages to fetch")
	historyCmd.Flags().IntVarP(&historyPageSize, "limit", "n", 0, "Messages per page")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Page through a conversation's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := args[0]

		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var opts []openline.PagerOption
		if historyPageSize > 0 {
			opts = append(opts, openline.WithPageSize(historyPageSize))
		}
		pager := openline.NewHistoryPager(newSDKClient(cfg), opts...)

		if err := pager.LoadInitial(ctx, conversationID); err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		for page := 1; page < historyPages && pager.HasMore(); page++ {
			if err := pager.LoadMore(ctx); err != nil {
				return fmt.Errorf("failed to load page %d: %w", page+1, err)
			}
		}
		if msg := pager.LastError(); msg != "" {
			return fmt.Errorf("server error: %s", msg)
		}

		messages := pager.Messages()
		if len(messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for _, m := range messages {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.SenderName, m.Text)
			if text := openline.ReadStatusText(m.ReadBy); text != "" {
				fmt.Printf("  %s\n", text)
			}
		}
		fmt.Printf("\n%d messages", len(messages))
		if pager.HasMore() {
			fmt.Print(" (more available)")
		}
		fmt.Println()
		return nil
	},
}
