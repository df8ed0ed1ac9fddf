package domain

// Signal es la recomendación derivada del gap entre precio de mercado y belief.
type Signal string

const (
	SignalBuy        Signal = "BUY"
	SignalHold       Signal = "HOLD"
	SignalOvervalued Signal = "OVERVALUED"
)

// Gap devuelve precio de mercado menos belief, ambos en puntos porcentuales.
func Gap(pricePct, beliefPct float64) float64 {
	return pricePct - beliefPct
}

// ClassifySignal: el mercado paga menos de lo que creemos → BUY; paga más → OVERVALUED.
// Dentro de ±threshold es HOLD.
func ClassifySignal(pricePct, beliefPct, threshold float64) Signal {
	gap := Gap(pricePct, beliefPct)
	switch {
	case gap < -threshold:
		return SignalBuy
	case gap > threshold:
		return SignalOvervalued
	default:
		return SignalHold
	}
}

// PricePercent convierte un precio de Delphi a porcentaje. Los precios en (0,1] se
// interpretan como probabilidad; valores mayores ya vienen en porcentaje.
func PricePercent(price float64) float64 {
	if price <= 1 {
		return price * 100
	}
	return price
}
