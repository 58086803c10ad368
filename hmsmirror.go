//go:build hmsmirror

package main

import (
	"os"

	"github.com/dstreev/hms-mirror-sub000/mirror"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:     "hms-mirror",
		Short:   "hms-mirror utility for migrating Hive metastore definitions and data between clusters",
		Args:    cobra.NoArgs,
		Version: mirror.GetVersion(),
		Run: func(cmd *cobra.Command, args []string) {
			defer mirror.DoTeardown()
			mirror.DoFlagValidation(cmd)
			mirror.DoSetup()
			mirror.DoMirror()
		}}
	rootCmd.SetArgs(utils.HandleSingleDashes(os.Args[1:]))
	mirror.DoInit(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}
