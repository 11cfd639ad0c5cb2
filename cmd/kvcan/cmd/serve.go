package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roffe/kvcan"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bridge the bus to websocket clients",
	Long:  `Streams received frames as JSON to clients on /ws and transmits
frames sent by the clients, e.g. {"id":2024,"data":"0201"}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Listen, _ = cmd.Flags().GetString("listen")
		}
		ctx := cmd.Context()
		ch, err := busOn(ctx, cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		return NewBridge(ctx, ch, cfg.TxTimeout).Run(ctx, cfg.Listen)
	},
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

// WireFrame is the JSON form of a CAN frame.
type WireFrame struct {
	ID         uint32  `json:"id"`
	DLC        uint8   `json:"dlc,omitempty"`
	Data       string  `json:"data,omitempty"` // hex
	Extended   bool    `json:"extended,omitempty"`
	Remote     bool    `json:"remote,omitempty"`
	FD         bool    `json:"fd,omitempty"`
	BRS        bool    `json:"brs,omitempty"`
	ESI        bool    `json:"esi,omitempty"`
	ErrorFrame bool    `json:"error_frame,omitempty"`
	Timestamp  float64 `json:"timestamp,omitempty"` // seconds since adapter start
}

func toWire(m *kvcan.Message) *WireFrame {
	return &WireFrame{
		ID:         m.ID,
		DLC:        m.DLC,
		Data:       hex.EncodeToString(m.Payload()),
		Extended:   m.Extended,
		Remote:     m.Remote,
		FD:         m.FDF,
		BRS:        m.BRS,
		ESI:        m.ESI,
		ErrorFrame: m.ErrorFrame,
		Timestamp:  m.Timestamp.Seconds(),
	}
}

func (w *WireFrame) Message() (*kvcan.Message, error) {
	data, err := hex.DecodeString(w.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	if len(data) > 64 {
		return nil, fmt.Errorf("data: %d bytes", len(data))
	}
	m := kvcan.NewMessage(w.ID, data)
	m.Extended = w.Extended
	m.Remote = w.Remote
	m.FDF = m.FDF || w.FD
	m.BRS = w.BRS
	if w.Remote && w.DLC > 0 {
		m.DLC = w.DLC
	}
	return m, nil
}

// Envelope is one websocket message in either direction. Clients send a
// Frame, the bridge answers failed sends with Error.
type Envelope struct {
	Frame *WireFrame `json:"frame,omitempty"`
	Event string     `json:"event,omitempty"`
	Error string     `json:"error,omitempty"`
	Stamp int64      `json:"stamp"` // Unix ms
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Bridge fans received frames out to websocket clients. Frames sent by
// clients are transmitted under ctx.
type Bridge struct {
	ctx       context.Context
	ch        *kvcan.Channel
	txTimeout time.Duration

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

func NewBridge(ctx context.Context, ch *kvcan.Channel, txTimeout time.Duration) *Bridge {
	return &Bridge{
		ctx:       ctx,
		ch:        ch,
		txTimeout: txTimeout,
		clients:   make(map[*wsClient]struct{}),
		upgrader:  websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	return mux
}

// Run serves until ctx is cancelled or the channel fails.
func (b *Bridge) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: b.Handler(),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Pump(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	g.Go(func() error {
		log.Printf("[server] listening on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// Pump broadcasts received frames and events until ctx is done.
func (b *Bridge) Pump(ctx context.Context) error {
	msgs, events, errs := b.ch.Messages(), b.ch.Event(), b.ch.Err()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			b.broadcast(Envelope{Frame: toWire(&m)})
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			log.Println(e.String())
			if e.Type != kvcan.EventTypeDebug {
				b.broadcast(Envelope{Event: e.String()})
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.broadcast(Envelope{Error: err.Error()})
			log.Printf("[server] %v", err)
			return err
		}
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	b.clientsMu.Lock()
	b.clients[client] = struct{}{}
	n := len(b.clients)
	b.clientsMu.Unlock()
	log.Printf("[ws] client connected (%d total)", n)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			b.clientsMu.Lock()
			delete(b.clients, client)
			n := len(b.clients)
			b.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if err := b.transmit(data); err != nil {
				reply(client, Envelope{Error: err.Error()})
			}
		}
	}()
}

func (b *Bridge) transmit(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Frame == nil {
		return errors.New("no frame")
	}
	m, err := env.Frame.Message()
	if err != nil {
		return err
	}
	return b.ch.Send(b.ctx, m, b.txTimeout)
}

func reply(c *wsClient, env Envelope) {
	env.Stamp = time.Now().UnixMilli()
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (b *Bridge) broadcast(env Envelope) {
	env.Stamp = time.Now().UnixMilli()
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for client := range b.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
