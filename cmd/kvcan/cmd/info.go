package cmd

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/roffe/kvcan/pkg/protocol"
	"github.com/roffe/kvcan/pkg/usb"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show adapter information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("min-fw"); v != "" {
			cfg.MinimumFirmwareVersion = v
		}
		if cfg.Transport == "usb" && !cmd.Flags().Changed(flagIndex) {
			if cfg.Index, err = selectAdapter(); err != nil {
				return err
			}
		}
		ctx := cmd.Context()
		ch, err := initCAN(ctx, cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		go logEvents(ctx, ch)

		info, err := ch.DeviceInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Println(info.String())
		if clock, err := ch.ReadClock(ctx); err == nil {
			fmt.Printf("  uptime:       %s\n", clock)
		}
		if mode, err := ch.DriverMode(ctx); err == nil {
			fmt.Printf("  driver mode:  %s\n", mode)
		}
		if p, err := ch.BusParams(ctx); err == nil {
			fmt.Printf("  bus params:   %d bit/s, sp %d‰\n", p.BitRate, p.SamplePoint())
		}
		if ch.OpMode().Has(protocol.ModeFDOE) {
			if p, err := ch.BusParamsFd(ctx); err == nil {
				fmt.Printf("  data phase:   %d bit/s, sp %d‰\n", p.Data.BitRate, p.Data.SamplePoint())
			}
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().String("min-fw", "", "warn if the firmware is older than this version")
	rootCmd.AddCommand(infoCmd)
}

// selectAdapter asks which adapter to use when more than one is connected.
func selectAdapter() (int, error) {
	devs, err := usb.List()
	if err != nil {
		return 0, err
	}
	if len(devs) < 2 {
		return 0, nil
	}
	items := make([]string, len(devs))
	for i, d := range devs {
		items[i] = d.String()
	}
	prompt := promptui.Select{
		Label:    "Select adapter",
		HideHelp: true,
		Items:    items,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return 0, fmt.Errorf("prompt failed: %w", err)
	}
	return devs[idx].Index, nil
}
