package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type lightStatus string

var traffic = Table[lightStatus]{
	"red":    {"green"},
	"green":  {"yellow", "off"},
	"yellow": {"red", "off"},
	"off":    {},
}

func TestValidateAllowsTableEdges(t *testing.T) {
	for from, targets := range traffic {
		for _, to := range targets {
			assert.NoError(t, Validate("light", from, to, traffic), "%s -> %s", from, to)
		}
	}
}

func TestValidateRejectsMissingEdges(t *testing.T) {
	err := Validate("light", lightStatus("red"), lightStatus("yellow"), traffic)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	var tErr *shared.InvalidTransitionError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "red", tErr.From)
	assert.Equal(t, "yellow", tErr.To)
	assert.Equal(t, "light", tErr.Entity)
}

func TestValidateRejectsSelfAndTerminal(t *testing.T) {
	assert.Error(t, Validate("light", lightStatus("green"), lightStatus("green"), traffic))

	err := Validate("light", lightStatus("off"), lightStatus("red"), traffic)
	var tErr *shared.InvalidTransitionError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "current status is terminal", tErr.Reason)
}

func TestValidateRejectsUnknownStatus(t *testing.T) {
	err := Validate("light", lightStatus("red"), lightStatus("blue"), traffic)
	var tErr *shared.InvalidTransitionError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "unknown status", tErr.Reason)
}

func TestTableHelpers(t *testing.T) {
	assert.True(t, traffic.IsTerminal("off"))
	assert.False(t, traffic.IsTerminal("red"))
	assert.False(t, traffic.IsTerminal("purple"))
	assert.True(t, traffic.Known("yellow"))

	targets := traffic.Targets("green")
	targets[0] = "mutated"
	assert.Equal(t, lightStatus("yellow"), traffic["green"][0])
}
