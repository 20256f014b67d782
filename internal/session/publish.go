package session

import (
	"math"
	"strconv"
)

// canPublish reports whether a publish would reach a live session.
func (m *Manager) canPublish() bool {
	return m.configured && m.bound && !m.forced && m.associated() && m.client.Connected()
}

// PublishInt publishes v in base-10. It is a silent no-op without a live
// session.
func (m *Manager) PublishInt(topic string, v int64) {
	if !m.canPublish() {
		return
	}
	buf := strconv.AppendInt(m.scratch[:0], v, 10)
	m.client.Publish(topic, buf)
}

// PublishFloat publishes v with the configured number of fractional
// digits. NaN and infinities are dropped, as is any value whose text does
// not fit the scratch buffer. It is a silent no-op without a live session.
func (m *Manager) PublishFloat(topic string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		m.logger.Debug("publish dropped, value not finite", "topic", topic)
		return
	}
	if !m.canPublish() {
		return
	}

	buf := strconv.AppendFloat(m.scratch[:0], v, 'f', m.cfg.FloatPrecision, 64)
	if len(buf) > scratchSize {
		m.logger.Debug("publish dropped, value too long", "topic", topic, "length", len(buf))
		return
	}
	m.client.Publish(topic, buf)
}

// PublishString publishes s unchanged. Text longer than the configured
// buffer size is dropped. It is a silent no-op without a live session.
func (m *Manager) PublishString(topic, s string) {
	if m.cfg.BufferSize > 0 && len(s) > m.cfg.BufferSize {
		m.logger.Debug("publish dropped, payload too long", "topic", topic, "length", len(s))
		return
	}
	if !m.canPublish() {
		return
	}
	m.client.Publish(topic, []byte(s))
}
