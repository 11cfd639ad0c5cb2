package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Go on bus and report controller state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		ch, err := busOn(ctx, cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		go logEvents(ctx, ch)

		state, err := ch.BusStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("bus status:  %s\n", state.BusStatus)
		fmt.Printf("error count: tx %d rx %d\n", state.TxErrors, state.RxErrors)
		if load, err := ch.BusLoad(ctx); err == nil {
			fmt.Printf("bus load:    %d.%02d%%\n", load/100, load%100)
		} else {
			fmt.Printf("bus load:    %v\n", err)
		}
		if e, ok := ch.LastCanError(); ok {
			fmt.Printf("last error:  %s tx %d rx %d factor 0x%02X\n", e.BusStatus, e.TxErrors, e.RxErrors, e.ErrorFactor)
		}
		if r, ok := ch.LastError(); ok {
			fmt.Printf("firmware:    code %d info 0x%04X 0x%04X\n", r.Code, r.AddInfo1, r.AddInfo2)
		}
		st := ch.Stats()
		fmt.Println(st.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
