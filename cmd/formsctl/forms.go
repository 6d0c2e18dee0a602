package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedFormsCmd = &cobra.Command{
	Use:   "seed-forms [file]",
	Short: "Register form definitions from a YAML file",
	Long: `Upsert every form under the top-level "forms:" key of the YAML file
into the form registry. Without an argument FORMS_FILE is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.FormsFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no file given and FORMS_FILE is not set")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.SeedForms(cmd.Context(), path)
		if err != nil {
			return err
		}
		logger.Info("Seeded form registry", zap.String("file", path), zap.Int("forms", n))
		return nil
	},
}
