// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health models the startup, liveness and readiness states
// reported by the server's probe endpoints.
package health

import (
	"context"
	"sync/atomic"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// Binary represents a [Metric] that is either healthy or not.
// The zero value is unhealthy.
type Binary struct {
	healthy atomic.Bool
}

// NewBinary returns a [Binary] in the given initial state.
func NewBinary(healthy bool) *Binary {
	b := new(Binary)
	b.healthy.Store(healthy)
	return b
}

// MarkHealthy sets the state to healthy.
func (m *Binary) MarkHealthy() {
	m.healthy.Store(true)
}

// MarkUnhealthy sets the state to unhealthy.
func (m *Binary) MarkUnhealthy() {
	m.healthy.Store(false)
}

// Toggle flips the state.
func (m *Binary) Toggle() {
	for {
		old := m.healthy.Load()
		if m.healthy.CompareAndSwap(old, !old) {
			return
		}
	}
}

// Healthy implements the [Metric] interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return m.healthy.Load()
}

// AndMetric represents multiple Metrics all and'd together.
type AndMetric []Metric

// And returns a Metric which is healthy only when all of metrics are.
func And(metrics ...Metric) AndMetric {
	return AndMetric(metrics)
}

// Healthy implements the [Metric] interface.
func (m AndMetric) Healthy(ctx context.Context) bool {
	for _, metric := range m {
		if !metric.Healthy(ctx) {
			return false
		}
	}
	return true
}

// NotMetric negates the underlying [Metric].
type NotMetric struct {
	metric Metric
}

// Not returns a Metric which is healthy when metric is not.
func Not(metric Metric) NotMetric {
	return NotMetric{metric: metric}
}

// Healthy implements the [Metric] interface.
func (m NotMetric) Healthy(ctx context.Context) bool {
	return !m.metric.Healthy(ctx)
}
