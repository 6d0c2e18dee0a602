package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rotateSecretsCmd = &cobra.Command{
	Use:   "rotate-secrets",
	Short: "Re-encrypt stored credentials with the current key",
	Long: `Append a new id:secret pair to ENCRYPTION_KEYS, then run this command
to move the SMTP password and every ESP credential onto it. Older keys
can be removed from ENCRYPTION_KEYS once the command reports success.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Settings.ReencryptAll(cmd.Context(), a.Keyring)
		if err != nil {
			return err
		}
		logger.Info("Credentials re-encrypted",
			zap.String("key_id", a.Keyring.CurrentID()),
			zap.Int("changed", n))
		return nil
	},
}
