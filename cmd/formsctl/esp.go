package main

import (
	"fmt"

	"swish-forms/internal/esp"
	"swish-forms/internal/settings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var showLists bool

var testConnectionCmd = &cobra.Command{
	Use:       "test-connection <provider>",
	Short:     "Check the stored credentials of an ESP",
	ValidArgs: []string{"mailchimp", "convertkit", "klaviyo", "activecampaign", "brevo"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := esp.ParseKind(args[0])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		snap, err := a.Settings.Load(ctx)
		if err != nil {
			return err
		}

		if err := a.ESP.TestConnection(ctx, snap, kind, settings.ProviderCredentials{}); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		logger.Info("Connection successful", zap.String("provider", string(kind)))

		if !showLists {
			return nil
		}
		lists, err := a.ESP.FetchLists(ctx, snap, kind, settings.ProviderCredentials{})
		if err != nil {
			return err
		}
		for _, l := range lists {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", l.ID, l.Name)
		}
		return nil
	},
}

func init() {
	testConnectionCmd.Flags().BoolVar(&showLists, "lists", false, "also print the provider's lists")
}
