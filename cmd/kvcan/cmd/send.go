package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/bar"
	"github.com/spf13/cobra"
	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"
)

var sendCmd = &cobra.Command{
	Use:   "send ID#DATA",
	Short: "Transmit a frame",
	Long:  `Transmits a frame given in candump notation:

  7E0#0201         standard data frame
  18DAF110#0201    extended data frame
  7DF#R            remote frame
  100##1AABBCC     CAN FD frame, the digit after ## holds the flags (1 = BRS, 2 = ESI)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := parseFrame(args[0])
		if err != nil {
			return err
		}
		pf := cmd.Flags()
		count, _ := pf.GetInt("count")
		interval, _ := pf.GetDuration("interval")
		if fd, _ := pf.GetBool("fd"); fd {
			m.FDF = true
		}
		if brs, _ := pf.GetBool("brs"); brs {
			m.FDF, m.BRS = true, true
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if m.FDF {
			cfg.OpMode = append(cfg.OpMode, "fd")
		}
		if m.BRS {
			cfg.OpMode = append(cfg.OpMode, "brs")
		}
		ctx := cmd.Context()
		ch, err := busOn(ctx, cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		go logEvents(ctx, ch)

		if count <= 1 {
			if err := ch.Send(ctx, m, cfg.TxTimeout); err != nil {
				return err
			}
			fmt.Println(m.ColorString())
			return nil
		}

		pb := bar.New(count, "sending")
		start := time.Now()
		done := make(chan struct{})
		var received atomic.Uint64
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(done)
			for i := 0; i < count; i++ {
				if err := ch.Send(gctx, m, cfg.TxTimeout); err != nil {
					return fmt.Errorf("frame %d: %w", i+1, err)
				}
				pb.Add(1)
				if interval > 0 {
					select {
					case <-gctx.Done():
						return gctx.Err()
					case <-time.After(interval):
					}
				}
			}
			return nil
		})
		// keep the receive queue drained while sending
		g.Go(func() error {
			msgs := ch.Messages()
			for {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return nil
				case <-msgs:
					received.Add(1)
				}
			}
		})
		if err := g.Wait(); err != nil {
			return err
		}
		st := ch.Stats()
		fmt.Printf("sent %d frames in %s, received %d, %s\n", count, time.Since(start).Round(time.Millisecond), received.Load(), st.String())
		return nil
	},
}

func init() {
	f := sendCmd.Flags()
	f.IntP("count", "n", 1, "number of times to send the frame")
	f.Duration("interval", 0, "delay between frames")
	f.Bool("fd", false, "send as CAN FD frame")
	f.Bool("brs", false, "switch bit rate in the data phase, implies --fd")
	rootCmd.AddCommand(sendCmd)
}

// parseFrame parses candump notation. Classic frames go through the
// einride parser, FD frames use ID##<flags><data>.
func parseFrame(s string) (*kvcan.Message, error) {
	s = strings.TrimSpace(s)
	if id, rest, ok := strings.Cut(s, "##"); ok {
		return parseFDFrame(id, rest)
	}
	var f can.Frame
	if err := f.UnmarshalString(s); err != nil {
		return nil, fmt.Errorf("invalid frame %q: %w", s, err)
	}
	return kvcan.FromCANFrame(f), nil
}

func parseFDFrame(idStr, rest string) (*kvcan.Message, error) {
	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q", idStr)
	}
	if rest == "" {
		return nil, fmt.Errorf("missing flags after ##")
	}
	flags, err := strconv.ParseUint(rest[:1], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid flags %q", rest[:1])
	}
	data, err := hex.DecodeString(rest[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if len(data) > 64 {
		return nil, fmt.Errorf("%d bytes exceed a CAN FD frame", len(data))
	}
	m := kvcan.NewMessage(uint32(id), data)
	m.FDF = true
	m.BRS = flags&0x1 != 0
	m.ESI = flags&0x2 != 0
	m.Extended = len(idStr) == 8 || id > 0x7FF
	return m, nil
}
