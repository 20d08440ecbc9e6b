package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/bryanchriswhite/captain/internal/handler"
	"github.com/spf13/cobra"
)

var codecsCmd = &cobra.Command{
	Use:   "codecs",
	Short: "List available codecs",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintln(w, "NAME\tDESCRIPTION\tKIND")
		fmt.Fprintln(w, "----\t-----------\t----")
		printDescriptors(w, codec.StillCodecs().Enumerate(), "still")
		printDescriptors(w, codec.VideoCodecs().Enumerate(), "motion")
		return nil
	},
}

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List available handlers",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		fmt.Fprintln(w, "----\t-----------")
		for _, d := range handler.Defaults().Enumerate() {
			fmt.Fprintf(w, "%s\t%s\n", d.Name, d.DisplayName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(codecsCmd)
	rootCmd.AddCommand(handlersCmd)
}

func printDescriptors(w *tabwriter.Writer, descriptors []extension.Descriptor, kind string) {
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.DisplayName, kind)
	}
}
