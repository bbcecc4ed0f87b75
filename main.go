package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"messageboard/auth"
	"messageboard/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "messageboard",
	Short: "Message board server",
	Long: `A server-rendered message board: users sign up, write posts in
Markdown, comment, and search the board by title, body or author.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		auth.Cost = cfg.BcryptCost
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
