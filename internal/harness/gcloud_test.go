//go:build gcloud

package harness_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bqflow/internal/config"
	"github.com/dvloznov/bqflow/internal/harness"
	"github.com/dvloznov/bqflow/internal/logger"
)

// These tests talk to a real project. Run with:
//
//	BQ_TEST_PROJECT_ID=... BQ_TEST_INPUT_BUCKET=... go test -tags gcloud ./internal/harness/
func TestScenarios_GCloud(t *testing.T) {
	env, err := config.FromEnv()
	require.NoError(t, err, "set %s and %s before running gcloud tests", config.EnvProjectID, config.EnvBucket)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	backend, err := harness.Connect(ctx, env, logger.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	for _, s := range harness.Scenarios {
		t.Run(s.Name, func(t *testing.T) {
			res := harness.RunScenario(ctx, backend.Factory(), s)
			require.True(t, res.Pass, res.Error)
		})
	}
}
