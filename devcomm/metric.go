package devcomm

import (
	"sync/atomic"
)

// Metrics contains atomic transfer counters for a backend.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// BytesRead indicates the total number of bytes read from the device.
	BytesRead atomic.Uint64
	// BytesWritten indicates the total number of bytes written to the device.
	BytesWritten atomic.Uint64

	// ReadCount indicates the number of read operations performed.
	ReadCount atomic.Uint64
	// WriteCount indicates the number of write operations performed.
	WriteCount atomic.Uint64

	// ReadErrCount indicates the number of failed read operations.
	ReadErrCount atomic.Uint64
	// WriteErrCount indicates the number of failed write operations.
	WriteErrCount atomic.Uint64

	// TimeoutCount indicates the number of operations that timed out.
	TimeoutCount atomic.Uint64

	// OpenRetryGauge indicates the number of retries of the latest open attempt.
	OpenRetryGauge atomic.Uint32
}

// AddRead records a successful read of n bytes.
func (m *Metrics) AddRead(n int) {
	m.ReadCount.Add(1)
	m.BytesRead.Add(uint64(n)) //nolint:gosec
}

// AddWrite records a successful write of n bytes.
func (m *Metrics) AddWrite(n int) {
	m.WriteCount.Add(1)
	m.BytesWritten.Add(uint64(n)) //nolint:gosec
}

// AddReadErr records a failed read operation.
func (m *Metrics) AddReadErr() {
	m.ReadErrCount.Add(1)
}

// AddWriteErr records a failed write operation.
func (m *Metrics) AddWriteErr() {
	m.WriteErrCount.Add(1)
}

// AddTimeout records a timed-out operation.
func (m *Metrics) AddTimeout() {
	m.TimeoutCount.Add(1)
}
