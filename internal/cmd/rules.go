package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/recipegate/recipegate/internal/config"
	"github.com/recipegate/recipegate/internal/output"
)

var rulesOutput string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective quota rules",
	Long: `Print the quota rules the gateway would enforce with the current
configuration: built-in defaults merged with rate_limits overrides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return renderRules(cmd.OutOrStdout(), cfg, rulesOutput)
	},
}

func renderRules(w io.Writer, cfg *config.Config, formatName string) error {
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return err
	}

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatRules(output.RuleRows(rules))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().StringVarP(&rulesOutput, "output-format", "o", "table", "output format: table, json, yaml, markdown")
}
