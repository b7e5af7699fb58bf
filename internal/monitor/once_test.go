// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/stretchr/testify/assert"
)

func TestCheckOnce(t *testing.T) {
	prober := health.ProberFunc(func(_ context.Context, endpoint string, _ time.Duration) health.Result {
		if endpoint == "down" {
			time.Sleep(10 * time.Millisecond)
			return health.Result{Status: health.StatusOffline}
		}
		return health.Result{Status: health.StatusOnline}
	})
	services := []Service{
		{ID: "api", Endpoint: "up"},
		{ID: "vectorstore", Endpoint: "down"},
		{ID: "llm", Endpoint: "up"},
	}

	got := CheckOnce(context.Background(), services, prober, time.Second)
	assert.Equal(t, []string{"api", "vectorstore", "llm"}, ids(got))
	assert.Equal(t, health.StatusOnline, got[0].Status)
	assert.Equal(t, health.StatusOffline, got[1].Status)
	assert.False(t, AllOnline(got))

	got = CheckOnce(context.Background(), services[:1], prober, 0)
	assert.True(t, AllOnline(got))
}
