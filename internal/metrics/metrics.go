package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionsStarted counts attendance sessions opened by faculty.
var SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "edtrack_attendance_sessions_started_total",
	Help: "Number of attendance sessions started.",
})

// Marks counts mark attempts by outcome (ok, not_found, geofence, duplicate, error).
var Marks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "edtrack_attendance_marks_total",
	Help: "Number of attendance mark attempts by outcome.",
}, []string{"outcome"})
