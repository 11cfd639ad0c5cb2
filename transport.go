package kvcan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Transport is the byte stream to one adapter. Inbound bytes are delivered
// in transfer sized chunks with no framing guarantees.
type Transport interface {
	// ProductID returns the USB product id of the adapter.
	ProductID() uint16
	// Endpoints returns the number of bulk endpoints found on the interface.
	Endpoints() int
	Write(ctx context.Context, p []byte) error
	// StartReading calls fn from a reader goroutine for every chunk received.
	// fn must not retain p.
	StartReading(fn func(p []byte)) error
	// StopReading stops the reader and waits for fn to return. It is safe to
	// call more than once.
	StopReading() error
	Close() error
	String() string
}

type TransportInfo struct {
	Name        string
	Description string
	Open        func(*Config) (Transport, error)
}

func (t *TransportInfo) String() string {
	return fmt.Sprintf("%s | %s", t.Name, t.Description)
}

var (
	transportMu  sync.RWMutex
	transportMap = make(map[string]*TransportInfo)
)

func RegisterTransport(t *TransportInfo) error {
	transportMu.Lock()
	defer transportMu.Unlock()
	if _, found := transportMap[t.Name]; !found {
		transportMap[t.Name] = t
		return nil
	}
	return fmt.Errorf("transport %s already registered", t.Name)
}

func ListTransports() []string {
	transportMu.RLock()
	defer transportMu.RUnlock()
	var out []string
	for name := range transportMap {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func OpenTransport(name string, cfg *Config) (Transport, error) {
	transportMu.RLock()
	t, found := transportMap[name]
	transportMu.RUnlock()
	if !found {
		return nil, fmt.Errorf("unknown transport %q", name)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()
	return t.Open(cfg)
}
