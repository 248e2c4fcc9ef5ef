// cmd/loan-console/demo.go
package main

import (
	"encoding/json"
	"fmt"

	"loan-decision/internal/demo"
	"loan-decision/internal/models"
	"loan-decision/internal/verdict"

	"github.com/spf13/cobra"
)

func newDemoCmd() *cobra.Command {
	var strong, weak bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Print a generated demo application as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strong && weak {
				return fmt.Errorf("--strong and --weak are mutually exclusive")
			}

			gen := demo.NewGenerator(verdict.NewRand())
			var app models.Application
			switch {
			case strong:
				app = gen.Generate(true)
			case weak:
				app = gen.Generate(false)
			default:
				app = gen.Random()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(app)
		},
	}

	cmd.Flags().BoolVar(&strong, "strong", false, "generate a profile that clears every rule threshold")
	cmd.Flags().BoolVar(&weak, "weak", false, "generate a weaker profile")
	return cmd
}
