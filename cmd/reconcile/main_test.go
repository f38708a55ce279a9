package main

import (
	"context"
	"testing"
	"teamhub/config"
	applog "teamhub/logger"

	"github.com/stretchr/testify/assert"
)

func TestRunRequiresMongoBackend(t *testing.T) {
	cfg := &config.Config{AggregateBackend: config.BackendMemory}

	err := run(context.Background(), cfg, applog.Nop(), true, true)
	assert.ErrorContains(t, err, "mongo aggregate backend")
}
