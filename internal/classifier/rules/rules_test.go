package rules

import (
	"context"
	"testing"

	"FlowGuard/internal/config"
	"FlowGuard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstMatchingRuleWins(t *testing.T) {
	c, err := New(model.ModePacket, []config.RuleDef{
		{Label: "SynScan", Feature: "syn_flag", Operator: "=", Threshold: 1},
		{Label: "BigPayload", Feature: "payload_len", Operator: ">=", Threshold: 1000},
	}, "Normal")
	require.NoError(t, err)

	row := func(syn, payload float64) []float64 {
		r := make([]float64, 15)
		r[11] = syn
		r[7] = payload
		return r
	}
	labels, confs, err := c.Predict(context.Background(), [][]float64{
		row(1, 2000),
		row(0, 2000),
		row(0, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SynScan", "BigPayload", "Normal"}, labels)
	assert.Nil(t, confs)
	assert.False(t, c.ReportsConfidence())
}

func TestNewValidatesRules(t *testing.T) {
	_, err := New(model.ModeFlow, []config.RuleDef{{Label: "x", Feature: "nope", Operator: ">"}}, "")
	assert.ErrorContains(t, err, "unknown flow feature")

	_, err = New(model.ModeFlow, []config.RuleDef{{Label: "x", Feature: "Dst Port", Operator: "!="}}, "")
	assert.ErrorContains(t, err, "unknown operator")

	c, err := New(model.ModeFlow, nil, "")
	require.NoError(t, err)
	labels, _, err := c.Predict(context.Background(), [][]float64{make([]float64, 13)})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultLabel}, labels)
}

func TestCheck(t *testing.T) {
	assert.True(t, check(5, 3, ">"))
	assert.True(t, check(3, 3, ">="))
	assert.True(t, check(2, 3, "<"))
	assert.True(t, check(3, 3, "<="))
	assert.True(t, check(3, 3, "="))
	assert.False(t, check(3, 3, "~"))
}
