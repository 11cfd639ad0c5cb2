package cmd

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print frames seen on the bus",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pf := cmd.Flags()
		if pf.Changed("silent") {
			cfg.Silent, _ = pf.GetBool("silent")
		}
		filterStr, _ := pf.GetString("filter")
		flt, err := ui.ParseFilter(filterStr)
		if err != nil {
			return err
		}
		mon := &monitor{filter: flt}
		mon.candump, _ = pf.GetBool("candump")

		ctx := cmd.Context()
		ch, err := busOn(ctx, cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		go logEvents(ctx, ch)
		log.Printf("monitoring %s, filter %s", ch, flt)

		if tui, _ := pf.GetBool("tui"); tui {
			return mon.runTUI(ctx, ch)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return mon.read(gctx, ch, func(m *kvcan.Message) {
				fmt.Println(mon.format(m))
			})
		})
		if err := g.Wait(); err != nil && err != context.Canceled {
			return err
		}
		st := ch.Stats()
		log.Println(st.String())
		return nil
	},
}

func init() {
	f := monitorCmd.Flags()
	f.StringP("filter", "f", "", "only show these identifiers, e.g. 7E8,100-1FF")
	f.Bool("silent", false, "listen without acknowledging frames")
	f.Bool("candump", false, "print classic frames in candump notation")
	f.Bool("tui", false, "interactive terminal view")
	rootCmd.AddCommand(monitorCmd)
}

type monitor struct {
	mu      sync.Mutex
	filter  ui.Filter
	candump bool

	frames uint64
	shown  uint64
}

func (mon *monitor) setFilter(f ui.Filter) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.filter = f
}

// accept counts m and reports whether it passes the filter.
func (mon *monitor) accept(m *kvcan.Message) bool {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.frames++
	if !m.ErrorFrame && !mon.filter.Match(m.ID) {
		return false
	}
	mon.shown++
	return true
}

func (mon *monitor) counts() (frames, shown uint64) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.frames, mon.shown
}

func (mon *monitor) format(m *kvcan.Message) string {
	if mon.candump {
		if f, err := kvcan.ToCANFrame(m); err == nil {
			return fmt.Sprintf("(%.6f) %s", m.Timestamp.Seconds(), f.String())
		}
	}
	return m.ColorString()
}

// read hands accepted messages to fn until ctx is done or the channel fails.
func (mon *monitor) read(ctx context.Context, ch *kvcan.Channel, fn func(*kvcan.Message)) error {
	msgs, errs := ch.Messages(), ch.Err()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if mon.accept(&m) {
				fn(&m)
			}
		}
	}
}
