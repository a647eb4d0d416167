// Package datafile lee datos históricos grabados en CSV y los expone como
// fuentes pull para los runners de backtest.
//
// Formatos:
//   - ticks:    timestamp,symbol,price,quantity,is_buyer_maker
//   - orderbook: timestamp,last_update_id,bid_price_0,bid_qty_0,...,ask_price_0,ask_qty_0,...
//
// La profundidad del libro se detecta de la cabecera. Un directorio se
// recorre en orden lexicográfico de nombre de archivo, que para archivos
// fechados equivale a orden temporal.
package datafile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// resolveFiles expande path a la lista ordenada de CSVs a leer.
func resolveFiles(path, pattern string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("datafile: stat %q: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := filepath.Glob(filepath.Join(path, pattern))
	if err != nil {
		return nil, fmt.Errorf("datafile: glob %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("datafile: no hay archivos %q en %q", pattern, path)
	}
	sort.Strings(files)
	return files, nil
}

// parseTimestamp acepta epoch millis o RFC 3339.
func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("datafile: timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}

// multiReader encadena la lectura de varios CSV, devolviendo la cabecera
// de cada archivo al abrirlo.
type multiReader struct {
	files  []string
	idx    int
	file   *os.File
	reader *csv.Reader
	header []string
}

func newMultiReader(files []string) *multiReader {
	return &multiReader{files: files}
}

// next devuelve el siguiente registro de datos, abriendo archivos según
// haga falta. ok=false cuando no quedan registros.
func (m *multiReader) next() (record []string, ok bool, err error) {
	for {
		if m.reader == nil {
			if m.idx >= len(m.files) {
				return nil, false, nil
			}
			f, err := os.Open(m.files[m.idx])
			if err != nil {
				return nil, false, fmt.Errorf("datafile: open %q: %w", m.files[m.idx], err)
			}
			m.file = f
			m.reader = csv.NewReader(f)
			m.reader.ReuseRecord = true

			header, err := m.reader.Read()
			if err != nil {
				m.closeCurrent()
				return nil, false, fmt.Errorf("datafile: leer cabecera de %q: %w", m.files[m.idx], err)
			}
			m.header = append([]string(nil), header...)
		}

		rec, err := m.reader.Read()
		if err == io.EOF {
			m.closeCurrent()
			m.idx++
			continue
		}
		if err != nil {
			name := m.files[m.idx]
			m.closeCurrent()
			return nil, false, fmt.Errorf("datafile: leer %q: %w", name, err)
		}
		return rec, true, nil
	}
}

func (m *multiReader) closeCurrent() {
	if m.file != nil {
		m.file.Close()
		m.file = nil
		m.reader = nil
	}
}

// TickReader implementa ports.TickSource sobre CSVs de aggTrades.
type TickReader struct {
	mr     *multiReader
	symbol string
	cols   map[string]int
}

// NewTickReader abre el archivo o directorio dado. symbol filtra filas
// cuando no está vacío.
func NewTickReader(path, symbol string) (*TickReader, error) {
	files, err := resolveFiles(path, "*.csv")
	if err != nil {
		return nil, err
	}
	return &TickReader{mr: newMultiReader(files), symbol: strings.ToUpper(symbol)}, nil
}

// Next devuelve el siguiente trade en orden de archivo. ok=false al agotar
// los datos.
func (r *TickReader) Next() (domain.AggTrade, bool, error) {
	for {
		rec, ok, err := r.mr.next()
		if err != nil || !ok {
			return domain.AggTrade{}, false, err
		}
		if r.cols == nil {
			r.cols = indexColumns(r.mr.header)
			for _, required := range []string{"timestamp", "price", "quantity"} {
				if _, found := r.cols[required]; !found {
					return domain.AggTrade{}, false, fmt.Errorf("datafile: falta la columna %q", required)
				}
			}
		}

		// Filtrado por símbolo cuando la captura mezcla varios.
		if idx, found := r.cols["symbol"]; found && r.symbol != "" {
			if strings.ToUpper(rec[idx]) != r.symbol {
				continue
			}
		}

		trade, err := r.parse(rec)
		if err != nil {
			return domain.AggTrade{}, false, err
		}
		return trade, true, nil
	}
}

func (r *TickReader) parse(rec []string) (domain.AggTrade, error) {
	var t domain.AggTrade
	var err error

	if t.Timestamp, err = parseTimestamp(rec[r.cols["timestamp"]]); err != nil {
		return t, err
	}
	if t.Price, err = strconv.ParseFloat(rec[r.cols["price"]], 64); err != nil {
		return t, fmt.Errorf("datafile: price %q: %w", rec[r.cols["price"]], err)
	}
	if t.Quantity, err = strconv.ParseFloat(rec[r.cols["quantity"]], 64); err != nil {
		return t, fmt.Errorf("datafile: quantity %q: %w", rec[r.cols["quantity"]], err)
	}
	if idx, ok := r.cols["is_buyer_maker"]; ok {
		t.IsBuyerMaker = parseBool(rec[idx])
	}
	return t, nil
}

// Close libera el archivo abierto, si lo hay.
func (r *TickReader) Close() error {
	r.mr.closeCurrent()
	return nil
}

// SnapshotReader implementa ports.SnapshotSource sobre CSVs planos de
// orderbook.
type SnapshotReader struct {
	mr     *multiReader
	symbol string
	cols   map[string]int
	depth  int
}

// NewSnapshotReader abre el archivo o directorio dado.
func NewSnapshotReader(path, symbol string) (*SnapshotReader, error) {
	files, err := resolveFiles(path, "*.csv")
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{mr: newMultiReader(files), symbol: strings.ToUpper(symbol)}, nil
}

// Next devuelve el siguiente snapshot. ok=false al agotar los datos.
func (r *SnapshotReader) Next() (domain.OrderbookSnapshot, bool, error) {
	rec, ok, err := r.mr.next()
	if err != nil || !ok {
		return domain.OrderbookSnapshot{}, false, err
	}
	if r.cols == nil {
		r.cols = indexColumns(r.mr.header)
		r.depth = detectDepth(r.cols)
		if _, found := r.cols["timestamp"]; !found || r.depth == 0 {
			return domain.OrderbookSnapshot{}, false, fmt.Errorf("datafile: cabecera de orderbook inválida")
		}
	}

	snap, err := r.parse(rec)
	if err != nil {
		return domain.OrderbookSnapshot{}, false, err
	}
	return snap, true, nil
}

func (r *SnapshotReader) parse(rec []string) (domain.OrderbookSnapshot, error) {
	snap := domain.OrderbookSnapshot{Symbol: r.symbol}
	var err error

	if snap.Timestamp, err = parseTimestamp(rec[r.cols["timestamp"]]); err != nil {
		return snap, err
	}
	if idx, ok := r.cols["last_update_id"]; ok {
		if snap.LastUpdateID, err = strconv.ParseInt(rec[idx], 10, 64); err != nil {
			return snap, fmt.Errorf("datafile: last_update_id %q: %w", rec[idx], err)
		}
	}
	if idx, ok := r.cols["symbol"]; ok {
		snap.Symbol = strings.ToUpper(rec[idx])
	}

	for i := 0; i < r.depth; i++ {
		if lvl, ok, err := r.level(rec, "bid", i); err != nil {
			return snap, err
		} else if ok {
			snap.Bids = append(snap.Bids, lvl)
		}
		if lvl, ok, err := r.level(rec, "ask", i); err != nil {
			return snap, err
		} else if ok {
			snap.Asks = append(snap.Asks, lvl)
		}
	}
	return snap, nil
}

// level lee el nivel i de un lado. Celdas vacías significan que el libro
// grabado tenía menos profundidad en ese instante.
func (r *SnapshotReader) level(rec []string, side string, i int) (domain.BookLevel, bool, error) {
	priceIdx, okP := r.cols[fmt.Sprintf("%s_price_%d", side, i)]
	qtyIdx, okQ := r.cols[fmt.Sprintf("%s_qty_%d", side, i)]
	if !okP || !okQ || rec[priceIdx] == "" || rec[qtyIdx] == "" {
		return domain.BookLevel{}, false, nil
	}
	price, err := strconv.ParseFloat(rec[priceIdx], 64)
	if err != nil {
		return domain.BookLevel{}, false, fmt.Errorf("datafile: %s_price_%d %q: %w", side, i, rec[priceIdx], err)
	}
	qty, err := strconv.ParseFloat(rec[qtyIdx], 64)
	if err != nil {
		return domain.BookLevel{}, false, fmt.Errorf("datafile: %s_qty_%d %q: %w", side, i, rec[qtyIdx], err)
	}
	return domain.BookLevel{Price: price, Quantity: qty}, true, nil
}

// Close libera el archivo abierto, si lo hay.
func (r *SnapshotReader) Close() error {
	r.mr.closeCurrent()
	return nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return cols
}

// detectDepth cuenta las columnas bid_price_N presentes en la cabecera.
func detectDepth(cols map[string]int) int {
	depth := 0
	for {
		if _, ok := cols[fmt.Sprintf("bid_price_%d", depth)]; !ok {
			return depth
		}
		depth++
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes":
		return true
	}
	return false
}
