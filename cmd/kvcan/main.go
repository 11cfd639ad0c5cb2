package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roffe/kvcan/cmd/kvcan/cmd"

	// Init transports
	_ "github.com/roffe/kvcan/pkg/loopback"
	_ "github.com/roffe/kvcan/pkg/usb"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quitChan := make(chan os.Signal, 2)
	signal.Notify(quitChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-quitChan
		log.Printf("got %v, closing adapter", s)
		cancel()
		// Failsafe if a transfer never returns
		select {
		case <-quitChan:
			log.Fatal("interrupted twice, exiting")
		case <-time.After(45 * time.Second):
			log.Fatal("took to long to shutdown, forcefully exiting")
		}
	}()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
