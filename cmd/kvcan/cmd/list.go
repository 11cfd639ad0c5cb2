package cmd

import (
	"fmt"

	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/loopback"
	"github.com/roffe/kvcan/pkg/usb"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected adapters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := usb.List()
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			fmt.Println("no adapters found")
		}
		for _, d := range devs {
			fmt.Println(d.String())
		}
		fmt.Println()
		fmt.Println("transports:", kvcan.ListTransports())
		fmt.Println("simulated models:", loopback.Models())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
