package cli

import (
	"errors"
	"fmt"

	"github.com/OldStager01/elastic-orchestrator/internal/opstring"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <descriptor>...",
	Short: "Check operational string descriptors without deploying them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var errs []error
		for _, path := range args {
			ops, err := opstring.Load(path)
			if err != nil {
				fmt.Fprintf(out, "FAIL %v\n", err)
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(out, "ok   %s (%s, %d services, %d dynamic)\n",
				path, ops.Name, len(ops.AllElements()), countDynamic(ops))
		}
		return errors.Join(errs...)
	},
}

func countDynamic(ops *models.OperationalString) int {
	n := 0
	for _, elem := range ops.AllElements() {
		if elem.IsDynamic() {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
