package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage capture workflows",
	Long:  `List and inspect the workflows stored in the options file.`,
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured workflows",
	Example: `  # List workflows in table format (default)
  captain workflows list

  # List workflows in JSON format
  captain workflows list --format json`,
	RunE: runWorkflowsList,
}

var workflowsRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configMgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := configMgr.RemoveWorkflow(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed workflow: %s\n", args[0])
		return nil
	},
}

var workflowsFormat string

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsRemoveCmd)

	workflowsListCmd.Flags().StringVarP(&workflowsFormat, "format", "f", "table", "output format (table or json)")
}

func runWorkflowsList(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	workflows := configMgr.Workflows()

	switch workflowsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(workflows)
	case "table":
		return printWorkflowsTable(workflows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", workflowsFormat)
	}
}

func printWorkflowsTable(workflows []config.Workflow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tTYPE\tREGION\tCODEC\tHANDLERS\tHOTKEY")
	fmt.Fprintln(w, "----\t----\t------\t-----\t--------\t------")

	for _, wf := range workflows {
		handlers := make([]string, len(wf.Handlers))
		for i, h := range wf.Handlers {
			handlers[i] = h.Type
		}
		area := string(wf.Region.Type)
		if wf.Region.Type == region.Fixed {
			area = fmt.Sprintf("%s (%s)", area, wf.Region.Rect)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wf.Name, wf.Type, area, wf.Codec.Type, strings.Join(handlers, ", "), wf.Hotkey)
	}

	return nil
}
