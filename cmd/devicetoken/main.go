// Command devicetoken obtains Microsoft Entra ID tokens for any application
// with the OAuth 2.0 Device Authorization Grant, from the terminal or from a
// small web front end
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set by the build process
var Version = "dev"

const (
	defaultAppsCSV  = "data/MicrosoftApps.csv"
	defaultScopeMap = "data/scope-map.txt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	verbose bool
	appsCSV string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "devicetoken",
		Short:        "Get Microsoft Entra ID tokens with the device code flow",
		Version:      Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.appsCSV, "apps-csv", defaultAppsCSV, "CSV file with AppId and AppDisplayName columns")

	root.AddCommand(
		newLoginCmd(opts),
		newAppsCmd(opts),
		newServeCmd(opts),
	)
	return root
}
