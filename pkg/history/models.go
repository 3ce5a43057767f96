package history

import (
	"time"

	"github.com/ethpandaops/txlatency/pkg/record"
)

// Measurement is a persisted probe result.
type Measurement struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	Chain      string `gorm:"not null;index:idx_measurements_chain_executed" json:"chain"`
	Address    string `json:"address"`
	ExecutedAt int64  `gorm:"not null;index:idx_measurements_chain_executed" json:"executedAt"`
	ChainID    int64  `json:"chainId"`
	TxHash     string `json:"txhash"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
	Latency    int64  `json:"latency"`
	Error      string `gorm:"column:error_message;type:text" json:"error"`

	// Location is where the record file was uploaded; empty when the upload
	// failed.
	Location string `json:"location,omitempty"`

	CreatedAt time.Time `json:"-"`
}

// FromRecord converts a probe record into its persisted form.
func FromRecord(chain, address string, m *record.Measurement, location string) *Measurement {
	return &Measurement{
		Chain:      chain,
		Address:    address,
		ExecutedAt: m.ExecutedAt,
		ChainID:    m.ChainID,
		TxHash:     m.TxHash,
		StartTime:  m.StartTime,
		EndTime:    m.EndTime,
		Latency:    m.Latency,
		Error:      m.Error,
		Location:   location,
	}
}

// Summary aggregates measurements over a time window. Latency figures cover
// successful measurements only.
type Summary struct {
	Count      int64   `json:"count"`
	Failures   int64   `json:"failures"`
	AvgLatency float64 `json:"avgLatency"`
	MinLatency int64   `json:"minLatency"`
	MaxLatency int64   `json:"maxLatency"`
}
