package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ntropiq/internal/version"
)

var (
	versionDetailed bool
	versionRequire  string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info, err := version.GetInfo()
		if err != nil {
			return err
		}
		if versionRequire != "" {
			ok, err := info.Satisfies(versionRequire)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("version %s does not satisfy %q", info.Version, versionRequire)
			}
		}
		if versionDetailed {
			fmt.Fprintln(cmd.OutOrStdout(), info.Detailed())
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show build details")
	versionCmd.Flags().StringVar(&versionRequire, "require", "", "Fail unless the version satisfies this semver constraint")
}
