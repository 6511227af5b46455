package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eventstock/stockledger/internal/app"
	_ "github.com/eventstock/stockledger/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
