package planning

import "github.com/spf13/cobra"

// Register adds all planning-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(validateCmd)
	parent.AddCommand(batchesCmd)
}
