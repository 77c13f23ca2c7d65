package service

import (
	"testing"
	"time"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRule_Default(t *testing.T) {
	rule, err := NewStatusRule(config.DefaultStatusRule, 10*time.Minute)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSeen time.Time
		want     string
	}{
		{"just now", now.Add(-time.Second), StatusActive},
		{"inside window", now.Add(-9 * time.Minute), StatusActive},
		{"at window edge", now.Add(-10 * time.Minute), StatusIdle},
		{"long ago", now.Add(-24 * time.Hour), StatusIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rule.Evaluate(tt.lastSeen, now, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusRule_CustomExpression(t *testing.T) {
	rule, err := NewStatusRule(`recordings >= 3 ? "busy" : "quiet"`, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, `recordings >= 3 ? "busy" : "quiet"`, rule.Expression())

	now := time.Now()

	got, err := rule.Evaluate(now, now, 5)
	require.NoError(t, err)
	assert.Equal(t, "busy", got)

	got, err = rule.Evaluate(now, now, 1)
	require.NoError(t, err)
	assert.Equal(t, "quiet", got)
}

func TestStatusRule_RejectsBadExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", `now - `},
		{"unknown variable", `battery > 10 ? "ok" : "low"`},
		{"not a string", `now - last_seen < active_window`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStatusRule(tt.expr, time.Minute)
			assert.Error(t, err)
		})
	}
}
