package delphi

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DTOs raw de la API de Delphi. Solo se usan dentro de este paquete.
// La conversión a domain se hace en mapping.go.

// marketsResponse es la respuesta de GET /markets.
type marketsResponse struct {
	Items []marketItem `json:"items"`
}

type marketItem struct {
	MarketID   flexString `json:"market_id"`
	MarketName string     `json:"market_name"`
	Status     string     `json:"status"`
	CreatedTS  flexNumber `json:"created_ts"`
}

// evalsResponse es la respuesta de GET /markets/{id}/evals.
type evalsResponse struct {
	Evals []evalItem `json:"evals"`
}

type evalItem struct {
	Aggregate flexNumber `json:"aggregate"`
	Benchmark string     `json:"benchmark"`
}

// chartPoint es un data point del chart. El timestamp cambia de nombre según la versión.
type chartPoint struct {
	Timestamp flexString   `json:"timestamp"`
	TS        flexString   `json:"ts"`
	Entries   []chartEntry `json:"entries"`
}

type chartEntry struct {
	EntryIdx flexNumber `json:"entry_idx"`
	Price    flexNumber `json:"price"`
}

// flexNumber acepta número, string numérico o null. Lo que no se pueda parsear queda en NaN.
type flexNumber struct {
	Value float64
	Valid bool
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	f.Value, f.Valid = math.NaN(), false
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	f.Value, f.Valid = v, true
	return nil
}

// Float devuelve el valor, o 0 si no es un número finito.
func (f flexNumber) Float() float64 {
	if !f.Valid || math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
		return 0
	}
	return f.Value
}

// flexString acepta string o número (Delphi devuelve ids de ambas formas).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}
