package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	instancesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "showcase_process_instances_started_total",
			Help: "Total number of process instances started.",
		},
	)

	instancesEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_process_instances_ended_total",
			Help: "Total number of process instances ended, by final state.",
		},
		[]string{"state"},
	)

	jobsExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "showcase_jobs_executed_total",
			Help: "Total number of jobs executed successfully.",
		},
	)

	jobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "showcase_jobs_failed_total",
			Help: "Total number of failed job executions.",
		},
	)

	delegateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showcase_delegate_duration_seconds",
			Help:    "Service task delegate execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"delegate"},
	)
)

func init() {
	prometheus.MustRegister(instancesStarted)
	prometheus.MustRegister(instancesEnded)
	prometheus.MustRegister(jobsExecuted)
	prometheus.MustRegister(jobsFailed)
	prometheus.MustRegister(delegateDuration)
}
