package execution

import "github.com/spf13/cobra"

// Register adds all execution-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(runCmd)
	parent.AddCommand(resumeCmd)
	parent.AddCommand(checkpointsCmd)
}
