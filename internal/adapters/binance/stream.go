// Package binance implementa el StreamSource sobre el combined stream
// público de Binance: profundidad parcial y aggTrades del símbolo en una
// sola conexión websocket. No requiere API key.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jwcorp/tickdesk/internal/ports"
)

const defaultBaseURL = "wss://stream.binance.com:9443/stream"

// Config configura el stream combinado.
type Config struct {
	// Symbol en minúsculas, p. ej. "btcusdt".
	Symbol string

	// DepthLevels es la profundidad del snapshot parcial: 5, 10 o 20.
	DepthLevels int

	// UpdateSpeed es la cadencia del stream de profundidad: "100ms" o
	// "1000ms".
	UpdateSpeed string

	// MaxReconnects limita los intentos de reconexión consecutivos antes
	// de rendirse. Una conexión que llega a leer mensajes resetea la
	// cuenta.
	MaxReconnects int

	// BaseURL permite apuntar a un servidor de pruebas.
	BaseURL string
}

func (c *Config) setDefaults() {
	if c.DepthLevels == 0 {
		c.DepthLevels = 20
	}
	if c.UpdateSpeed == "" {
		c.UpdateSpeed = "100ms"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
}

// CombinedStream implementa ports.StreamSource contra Binance.
type CombinedStream struct {
	cfg Config

	// limiter espacia los intentos de conexión para no martillear el
	// endpoint tras una caída.
	limiter *rate.Limiter
}

// NewCombinedStream valida la configuración y construye el cliente.
func NewCombinedStream(cfg Config) (*CombinedStream, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("binance.NewCombinedStream: símbolo vacío")
	}
	cfg.setDefaults()
	switch cfg.DepthLevels {
	case 5, 10, 20:
	default:
		return nil, fmt.Errorf("binance.NewCombinedStream: depth_levels %d no soportado (5, 10, 20)", cfg.DepthLevels)
	}
	if cfg.UpdateSpeed != "100ms" && cfg.UpdateSpeed != "1000ms" {
		return nil, fmt.Errorf("binance.NewCombinedStream: update_speed %q no soportado", cfg.UpdateSpeed)
	}
	return &CombinedStream{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}, nil
}

// URL devuelve la URL del combined stream.
func (s *CombinedStream) URL() string {
	return fmt.Sprintf("%s?streams=%s@depth%d@%s/%s@aggTrade",
		s.cfg.BaseURL, s.cfg.Symbol, s.cfg.DepthLevels, s.cfg.UpdateSpeed, s.cfg.Symbol)
}

// Run conecta y reparte mensajes a los handlers hasta que el contexto se
// cancela. Las desconexiones se reintentan con espaciado de limiter hasta
// MaxReconnects fallos consecutivos.
func (s *CombinedStream) Run(ctx context.Context, h ports.StreamHandlers) error {
	attempts := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		delivered, err := s.runOnce(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Una conexión productiva resetea la cuenta de fallos.
		if delivered {
			attempts = 0
		}
		attempts++
		if attempts > s.cfg.MaxReconnects {
			return fmt.Errorf("binance.CombinedStream: %d reconexiones fallidas seguidas: %w", s.cfg.MaxReconnects, err)
		}
		slog.Warn("stream disconnected, reconnecting",
			"symbol", s.cfg.Symbol,
			"attempt", attempts,
			"err", err,
		)
	}
}

// runOnce abre una conexión y bombea mensajes hasta que falla o el
// contexto se cancela. delivered indica si llegó a entregar algún mensaje.
func (s *CombinedStream) runOnce(ctx context.Context, h ports.StreamHandlers) (delivered bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	slog.Info("stream connected", "symbol", s.cfg.Symbol, "url", s.URL())

	// gorilla no acepta contexto en ReadMessage: cerrar la conexión es
	// la forma de desbloquear el read cuando cancelan.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return delivered, fmt.Errorf("read: %w", err)
		}

		snap, trade, err := parseCombined(raw, s.cfg.Symbol)
		if err != nil {
			slog.Warn("dropping malformed stream message", "err", err)
			if h.OnError != nil {
				h.OnError(err)
			}
			continue
		}
		switch {
		case snap != nil:
			delivered = true
			if h.OnBook != nil {
				h.OnBook(*snap)
			}
		case trade != nil:
			delivered = true
			if h.OnTrade != nil {
				h.OnTrade(*trade)
			}
		}
	}
}
