package cmd

import (
	"fmt"

	"github.com/roffe/kvcan"
	"github.com/spf13/cobra"
)

var bitratesCmd = &cobra.Command{
	Use:   "bitrates",
	Short: "List bitrate presets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, b := range kvcan.Bitrates {
			fmt.Println(b.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(bitratesCmd)
}
