package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/keygate/internal/interfaces/cli/migrate"
	"github.com/orris-inc/keygate/internal/interfaces/cli/server"
	"github.com/orris-inc/keygate/internal/interfaces/cli/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keygate",
		Short: "Keygate - VPN subscription bot",
		Long:  `Keygate sells VPN access keys over Telegram: purchase and renewal flows, key provisioning on Outline servers and automatic expiry.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		version.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
