package dto

// PopularResponse es la respuesta de GET /polls/popular: columnas fijas y
// filas posicionales [poll, count, last_7_days_count].
type PopularResponse struct {
	Columns []string `json:"columns"`
	Data    any      `json:"data"`
}
