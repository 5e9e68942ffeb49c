package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		resp, err := newSDKClient(cfg).Conversations(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if !resp.Success {
			return fmt.Errorf("server error: %s", resp.Error)
		}

		if len(resp.Data) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, c := range resp.Data {
			name := c.Name
			if name == "" {
				name = c.Type
			}
			last := ""
			if c.LastMessage != nil {
				last = fmt.Sprintf("  last: %s", c.LastMessage.Text)
			}
			fmt.Printf("  %s: %s%s\n", c.ID, name, last)
		}
		return nil
	},
}
