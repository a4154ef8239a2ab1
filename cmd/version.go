package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.4.0"

func init() {
	omnisciCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of omniscidb",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		})
}
