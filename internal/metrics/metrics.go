// Package metrics exposes the Oven's tick-by-tick state as Prometheus
// gauges/counters, grounded on the pack's oven+PID demo
// (konradreiche/pid's example/oven, which instruments exactly this
// shape with promauto gauges) rather than on the teacher, which
// predates any metrics dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the process-wide gauges and counters for one Oven.
type Collector struct {
	Temperature     prometheus.Gauge
	Target          prometheus.Gauge
	ActuatorDuty    prometheus.Gauge
	AccumulatedCost prometheus.Gauge

	EmergencyTotal   prometheus.Counter
	SensorFaultTotal prometheus.Counter
}

// NewCollector registers a Collector's metrics against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Temperature: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_temperature_celsius",
			Help: "Most recently smoothed kiln temperature, converted to Celsius.",
		}),
		Target: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_target_celsius",
			Help: "Current control-loop setpoint, converted to Celsius.",
		}),
		ActuatorDuty: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_actuator_duty",
			Help: "Fraction of the actuation window the relay was energised for on the last tick.",
		}),
		AccumulatedCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_accumulated_cost",
			Help: "Running energy cost of the in-progress firing, in the configured currency.",
		}),
		EmergencyTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiln_emergency_total",
			Help: "Number of times the Oven has transitioned into EMERGENCY.",
		}),
		SensorFaultTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiln_sensor_fault_total",
			Help: "Number of classified sensor faults observed (STALE/SHORT/OPEN).",
		}),
	}
}
