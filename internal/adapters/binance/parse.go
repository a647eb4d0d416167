package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// combinedMessage es el sobre del combined stream: el nombre del stream y
// el payload crudo.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// depthPayload es el snapshot de profundidad parcial. Binance manda los
// niveles como pares de strings [precio, cantidad].
type depthPayload struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// aggTradePayload es un trade agregado del stream @aggTrade.
type aggTradePayload struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// parseCombined decodifica un mensaje del combined stream. Devuelve el
// snapshot o el trade según el stream de origen; ninguno de los dos para
// streams desconocidos.
func parseCombined(raw []byte, symbol string) (*domain.OrderbookSnapshot, *domain.AggTrade, error) {
	var msg combinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, fmt.Errorf("binance.parseCombined: %w", err)
	}

	switch {
	case strings.Contains(msg.Stream, "depth"):
		snap, err := parseDepth(msg.Data, symbol)
		if err != nil {
			return nil, nil, err
		}
		return snap, nil, nil

	case strings.Contains(msg.Stream, "aggTrade"):
		trade, err := parseAggTrade(msg.Data)
		if err != nil {
			return nil, nil, err
		}
		return nil, trade, nil
	}
	return nil, nil, nil
}

func parseDepth(data json.RawMessage, symbol string) (*domain.OrderbookSnapshot, error) {
	var p depthPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("binance.parseDepth: %w", err)
	}

	bids, err := parseLevels(p.Bids)
	if err != nil {
		return nil, fmt.Errorf("binance.parseDepth: bids: %w", err)
	}
	asks, err := parseLevels(p.Asks)
	if err != nil {
		return nil, fmt.Errorf("binance.parseDepth: asks: %w", err)
	}

	return &domain.OrderbookSnapshot{
		// El snapshot parcial no trae timestamp: se usa la hora de
		// recepción.
		Timestamp:    time.Now().UTC(),
		Symbol:       strings.ToUpper(symbol),
		Bids:         bids,
		Asks:         asks,
		LastUpdateID: p.LastUpdateID,
	}, nil
}

func parseLevels(raw [][]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("nivel incompleto %v", pair)
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("precio %q: %w", pair[0], err)
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("cantidad %q: %w", pair[1], err)
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

func parseAggTrade(data json.RawMessage) (*domain.AggTrade, error) {
	var p aggTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("binance.parseAggTrade: %w", err)
	}
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("binance.parseAggTrade: precio %q: %w", p.Price, err)
	}
	qty, err := strconv.ParseFloat(p.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("binance.parseAggTrade: cantidad %q: %w", p.Quantity, err)
	}

	return &domain.AggTrade{
		Timestamp:    time.UnixMilli(p.TradeTime).UTC(),
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: p.IsBuyerMaker,
	}, nil
}
