package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initToken string

func init() {
	initCmd.Flags().StringVar(&initToken, "token", "", "Auth token for the server")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <base-url>",
	Short: "Store server settings in ~/.openline/config.toml",
	Long:  "Initialize the Openline CLI by storing the server base URL (and optionally an auth token) in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Default.BaseURL = baseURL
		if initToken != "" {
			cfg.Default.Token = initToken
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Server settings saved to %s\n", path)
		if cfg.Identity.UserID == "" {
			fmt.Println("Next: set your identity with 'openline config set identity.user_id <id>'")
		}
		return nil
	},
}
