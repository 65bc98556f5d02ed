package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/models"
)

func newTestRunner() *Runner {
	return NewRunner(arbor.NewLogger(), nil, 0)
}

func testMeta(key string) models.JobMeta {
	return models.JobMeta{Kind: "test", Key: key, SessionID: "session-1", Target: key}
}

// gatedWork blocks until release is closed, then returns result
func gatedWork(release <-chan struct{}, result interface{}) Work {
	return func(ctx context.Context, p *Progress) (interface{}, error) {
		<-release
		return result, nil
	}
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(ctx), "job did not finish in time")
}
