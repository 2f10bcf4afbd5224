// FilePath: server/weatherhub/internal/models/models.trends.go
package models

// TrendPoint is one bucket mean for one metric.
type TrendPoint struct {
	T string  `json:"t"`
	V float64 `json:"v"`
}

// TrendSeries holds one sparse series per metric. A bucket without any
// value for a metric has no point in that metric's series.
type TrendSeries struct {
	Temperature   []TrendPoint `json:"temperature"`
	Humidity      []TrendPoint `json:"humidity"`
	Pressure      []TrendPoint `json:"pressure"`
	GasResistance []TrendPoint `json:"gas_resistance"`
}

// TrendsResponse is the downsampled payload for charting.
type TrendsResponse struct {
	BucketSeconds int64       `json:"bucket_seconds"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	Series        TrendSeries `json:"series"`
}
