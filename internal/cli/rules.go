package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/panoptikon-go/panoptikon/internal/rules"
	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage extraction eligibility rules (C3)",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <rule.json>",
	Short: "Add a rule from a JSON file (or - for stdin)",
	Long: `The rule file is a JSON object: {"setters": [{"type":"tags","name":"wd14"}],
"filters": {"positive": [...], "negative": [...]}} — each filter entry
carries a "kind" discriminator matching rules.Filter.Kind() (mime, path,
min_max, processed_items, processed_extracted_data).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args[0])
		if err != nil {
			return err
		}
		var wire ruleInput
		if err := json.Unmarshal(raw, &wire); err != nil {
			return fmt.Errorf("invalid rule JSON: %w", err)
		}

		engine, h, err := openRulesEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		id, err := engine.AddRule(wire.Setters, wire.Filters)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rule %d created\n", id)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, h, err := openRulesEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		list, err := engine.GetRules()
		if err != nil {
			return err
		}
		return printJSON(cmd, list)
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesSetEnabled(true),
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesSetEnabled(false),
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q: %w", args[0], err)
		}
		engine, h, err := openRulesEngine()
		if err != nil {
			return err
		}
		defer h.Close()
		return engine.DeleteRule(id)
	},
}

// ruleInput is the CLI's JSON wire shape for a new rule, separate from
// rules.Rule (which also carries ID/Enabled - irrelevant on create).
type ruleInput struct {
	Setters []storage.SetterRef  `json:"setters"`
	Filters rules.RuleItemFilters `json:"filters"`
}

func rulesSetEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q: %w", args[0], err)
		}
		engine, h, err := openRulesEngine()
		if err != nil {
			return err
		}
		defer h.Close()
		if enabled {
			return engine.EnableRule(id)
		}
		return engine.DisableRule(id)
	}
}

func openRulesEngine() (*rules.Engine, *storage.Handle, error) {
	h, err := storage.OpenWrite(cfg.ToStorePaths(), false, cfg.Store.EmbeddingDimensions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return rules.NewEngine(h.DB), h, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return os.ReadFile("/dev/stdin")
	}
	return os.ReadFile(path)
}

func init() {
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesEnableCmd, rulesDisableCmd, rulesDeleteCmd)
	rootCmd.AddCommand(rulesCmd)
}
