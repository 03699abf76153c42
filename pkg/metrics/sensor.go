package metrics

import "time"

// SensorMetrics provides observability for the sensor protocol adapter.
//
// This interface is optional: if not provided to the adapter, a no-op
// implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewSensorMetrics()
//	adapter := sensor.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := sensor.New(config, nil)
type SensorMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - request: request name (e.g., "GET_CONFIG", "SET_CONFIG")
	//   - response: final response name ("ACCEPT", "SUCCESS", "FAIL", ...)
	//   - duration: time taken to process the request
	RecordRequest(request string, response string, duration time.Duration)

	// RecordBytesSent records payload bytes sent for a request.
	RecordBytesSent(request string, bytes int64)

	// RecordAuthentication records the outcome of a connect exchange.
	RecordAuthentication(success bool)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the counter of connections
	// closed because the shutdown timeout expired.
	RecordConnectionForceClosed()
}

// NewNoopSensorMetrics returns a SensorMetrics that discards everything.
func NewNoopSensorMetrics() SensorMetrics {
	return noopSensorMetrics{}
}

type noopSensorMetrics struct{}

func (noopSensorMetrics) RecordRequest(request string, response string, duration time.Duration) {}
func (noopSensorMetrics) RecordBytesSent(request string, bytes int64)                           {}
func (noopSensorMetrics) RecordAuthentication(success bool)                                     {}
func (noopSensorMetrics) SetActiveConnections(count int32)                                      {}
func (noopSensorMetrics) RecordConnectionAccepted()                                             {}
func (noopSensorMetrics) RecordConnectionClosed()                                               {}
func (noopSensorMetrics) RecordConnectionForceClosed()                                          {}
