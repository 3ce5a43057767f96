package record

import (
	"strconv"
	"strings"
	"time"
)

// Measurement is the outcome of one probe cycle. Timestamps and latency are
// in milliseconds; zero means the step was never reached.
type Measurement struct {
	ExecutedAt int64  `parquet:"executedAt,timestamp(millisecond)" json:"executedAt"`
	TxHash     string `parquet:"txhash" json:"txhash"`
	StartTime  int64  `parquet:"startTime,timestamp(millisecond)" json:"startTime"`
	EndTime    int64  `parquet:"endTime,timestamp(millisecond)" json:"endTime"`
	ChainID    int64  `parquet:"chainId" json:"chainId"`
	Latency    int64  `parquet:"latency" json:"latency"`
	Error      string `parquet:"error" json:"error"`
}

// New returns an empty measurement for a cycle that began at executedAt.
func New(executedAt time.Time, chainID int64) *Measurement {
	return &Measurement{
		ExecutedAt: executedAt.UnixMilli(),
		ChainID:    chainID,
	}
}

// Start records the submission time.
func (m *Measurement) Start(t time.Time) {
	m.StartTime = t.UnixMilli()
}

// Complete records a confirmed transaction and derives the latency.
func (m *Measurement) Complete(txHash string, t time.Time) {
	m.TxHash = txHash
	m.EndTime = t.UnixMilli()
	m.Latency = m.EndTime - m.StartTime
}

// Fail stores the failure reason.
func (m *Measurement) Fail(err error) {
	if err == nil {
		return
	}

	m.Error = err.Error()
}

// Succeeded reports whether the transaction was confirmed.
func (m *Measurement) Succeeded() bool {
	return m.Error == "" && m.TxHash != ""
}

// CSV renders the measurement as
// executedAt,chainId,txhash,startTime,endTime,latency,error.
func (m *Measurement) CSV() string {
	var b strings.Builder

	b.WriteString(strconv.FormatInt(m.ExecutedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(m.ChainID, 10))
	b.WriteByte(',')
	b.WriteString(m.TxHash)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(m.StartTime, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(m.EndTime, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(m.Latency, 10))
	b.WriteByte(',')
	b.WriteString(m.Error)

	return b.String()
}
