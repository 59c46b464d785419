package watch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var promCurFreq = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pstatectl_cur_frequency_hertz",
		Help: "Current CPU frequency",
	},
	[]string{"cpu"},
)
var promMinFreq = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pstatectl_min_frequency_hertz",
		Help: "Lowest frequency the governor may select",
	},
	[]string{"cpu"},
)
var promMaxFreq = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pstatectl_max_frequency_hertz",
		Help: "Highest frequency the governor may select",
	},
	[]string{"cpu"},
)
var promTurbo = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "pstatectl_turbo_enabled",
		Help: "Whether turbo is enabled, 1 or 0",
	},
)

// startPrometheusServer publishes the sampling gauges on listenAddr.
func startPrometheusServer(listenAddr string) {
	prometheus.MustRegister(promCurFreq, promMinFreq, promMaxFreq, promTurbo)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("Starting Prometheus metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
		}
	}()
}

// updatePrometheusMetrics publishes one sampling pass to the gauges.
func updatePrometheusMetrics(s sample) {
	for _, cs := range s.cpus {
		cpu := strconv.Itoa(cs.cpu)
		promCurFreq.WithLabelValues(cpu).Set(float64(cs.curHz))
		promMinFreq.WithLabelValues(cpu).Set(float64(cs.minHz))
		promMaxFreq.WithLabelValues(cpu).Set(float64(cs.maxHz))
	}
	if s.turbo {
		promTurbo.Set(1)
	} else {
		promTurbo.Set(0)
	}
}
