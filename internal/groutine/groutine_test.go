package groutine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NamesContext(t *testing.T) {
	got := make(chan string, 1)

	Go(nil, "ble-scan", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	assert.Equal(t, "ble-scan", <-got)
}

func TestGetName_Unnamed(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	assert.Equal(t, "", GetName(nil)) //nolint:staticcheck // nil context is handled
}
