package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/loopback"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "kvcan",
	Short:        "Kvaser USB CAN tool",
	Long:         `Talk to Kvaser Leaf and Mhydra USB adapters without the vendor driver`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagConfig  = "config"
	flagIndex   = "index"
	flagBitrate = "bitrate"
	flagDebug   = "debug"
	flagVirtual = "virtual"
	flagOpMode  = "op-mode"
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	pf := rootCmd.PersistentFlags()
	pf.StringP(flagConfig, "c", "kvcan.yaml", "config file")
	pf.IntP(flagIndex, "i", 0, "adapter index, see list")
	pf.StringP(flagBitrate, "b", "500K", "bitrate preset, see bitrates")
	pf.BoolP(flagDebug, "d", false, "debug mode")
	pf.String(flagVirtual, "", "use a simulated adapter ("+joinModels()+")")
	pf.StringSlice(flagOpMode, nil, "op-mode flags: fd, brs, niso, nxtd, nrtr, err, mon")
}

func joinModels() string {
	var s string
	for i, m := range loopback.Models() {
		if i > 0 {
			s += ", "
		}
		s += m
	}
	return s
}

// loadConfig reads the config file and applies the flags that were set on
// the command line.
func loadConfig(cmd *cobra.Command) (*kvcan.Config, error) {
	pf := cmd.Flags()
	path, err := pf.GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg := kvcan.LoadConfig(path)
	if pf.Changed(flagIndex) {
		if cfg.Index, err = pf.GetInt(flagIndex); err != nil {
			return nil, err
		}
	}
	if pf.Changed(flagBitrate) {
		if cfg.Bitrate, err = pf.GetString(flagBitrate); err != nil {
			return nil, err
		}
	}
	if pf.Changed(flagDebug) {
		if cfg.Debug, err = pf.GetBool(flagDebug); err != nil {
			return nil, err
		}
	}
	if pf.Changed(flagOpMode) {
		if cfg.OpMode, err = pf.GetStringSlice(flagOpMode); err != nil {
			return nil, err
		}
	}
	if pf.Changed(flagVirtual) {
		if cfg.Virtual, err = pf.GetString(flagVirtual); err != nil {
			return nil, err
		}
		cfg.Transport = "loopback"
	}
	cfg.OnMessage = func(msg string) {
		log.Println(msg)
	}
	return cfg, nil
}

// initCAN opens and initializes a channel and applies the configured
// bitrate. Timeouts during open and initialization are retried.
func initCAN(ctx context.Context, cfg *kvcan.Config) (*kvcan.Channel, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	var ch *kvcan.Channel
	err = retry.Do(
		func() error {
			c, err := kvcan.Open(cfg)
			if err != nil {
				return err
			}
			if err := c.Initialize(ctx, mode); err != nil {
				c.Close()
				return err
			}
			ch = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(kvcan.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("attempt %d: %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Bitrate != "" {
		if err := ch.SetBitrate(ctx, cfg.Bitrate); err != nil {
			ch.Close()
			return nil, fmt.Errorf("bitrate %s: %w", cfg.Bitrate, err)
		}
	}
	return ch, nil
}

// busOn opens a channel and puts it on the bus.
func busOn(ctx context.Context, cfg *kvcan.Config) (*kvcan.Channel, error) {
	ch, err := initCAN(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := ch.BusOn(ctx, cfg.Silent); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// logEvents prints channel events until ctx is done.
func logEvents(ctx context.Context, ch *kvcan.Channel) {
	events := ch.Event()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if e.Type == kvcan.EventTypeDebug {
				log.Println(e.Details)
				continue
			}
			log.Println(e.String())
		}
	}
}
