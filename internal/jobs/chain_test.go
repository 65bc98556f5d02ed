package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/models"
)

func TestChain_SecondStageReceivesFirstResult(t *testing.T) {
	runner := newTestRunner()
	var secondCalls atomic.Int32
	var received int

	work := Chain("count", func(ctx context.Context, p *Progress) (int, error) {
		return 7, nil
	}, "double", func(ctx context.Context, p *Progress, in int) (int, error) {
		secondCalls.Add(1)
		received = in
		return in * 2, nil
	})

	job := runner.Start(testMeta("chain"), work)
	waitDone(t, job)

	snap := job.Snapshot()
	require.Equal(t, models.JobStateSucceeded, snap.State)
	assert.Equal(t, 14, snap.Result)
	assert.Equal(t, int32(1), secondCalls.Load())
	assert.Equal(t, 7, received)
	assert.Equal(t, models.StageInfo{Index: 1, Name: "double"}, snap.Stage)
}

func TestChain_FirstStageFailureSkipsSecond(t *testing.T) {
	runner := newTestRunner()
	errCheck := errors.New("check failed")
	var secondCalls atomic.Int32

	work := Chain("check", func(ctx context.Context, p *Progress) (int, error) {
		p.Print("checking")
		return 0, errCheck
	}, "publish", func(ctx context.Context, p *Progress, in int) (string, error) {
		secondCalls.Add(1)
		return "published", nil
	})

	job := runner.Start(testMeta("chain"), work)
	waitDone(t, job)

	snap := job.Snapshot()
	assert.Equal(t, models.JobStateFailed, snap.State)
	assert.ErrorIs(t, snap.Err, errCheck)
	assert.Equal(t, int32(0), secondCalls.Load())

	var jobErr *JobError
	require.ErrorAs(t, snap.Err, &jobErr)
	assert.Equal(t, 0, jobErr.Stage)
	assert.Equal(t, "check", jobErr.StageName)
	assert.Equal(t, "stage 1 (check) failed: check failed", jobErr.Error())

	chunks, _, err := job.Sink().ReadSince(0)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEqual(t, models.FormatMarker, c.Format, "no marker after a failed first stage")
	}
}

func TestChain_SecondStageFailureRecordsStage(t *testing.T) {
	runner := newTestRunner()
	errPublish := errors.New("publish failed")

	work := Chain("check", func(ctx context.Context, p *Progress) (int, error) {
		return 0, nil
	}, "publish", func(ctx context.Context, p *Progress, in int) (string, error) {
		return "", errPublish
	})

	job := runner.Start(testMeta("chain"), work)
	waitDone(t, job)

	var jobErr *JobError
	require.ErrorAs(t, job.Snapshot().Err, &jobErr)
	assert.Equal(t, 1, jobErr.Stage)
	assert.Equal(t, "publish", jobErr.StageName)
	assert.ErrorIs(t, jobErr, errPublish)
}

func TestChain_MarkerWrittenOnceBetweenStages(t *testing.T) {
	runner := newTestRunner()

	work := Chain("check", func(ctx context.Context, p *Progress) (int, error) {
		p.Print("checking links")
		return 0, nil
	}, "publish", func(ctx context.Context, p *Progress, in int) (string, error) {
		p.Print("publishing")
		return "ok", nil
	})

	job := runner.Start(testMeta("chain"), work)
	waitDone(t, job)

	chunks, _, err := job.Sink().ReadSince(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"checking links", "stage 1 complete", "publishing"}, models.Texts(chunks))

	markers := 0
	for _, c := range chunks {
		if c.Format == models.FormatMarker {
			markers++
		}
	}
	assert.Equal(t, 1, markers)
}

func TestSequence_StopsAtFirstFailure(t *testing.T) {
	runner := newTestRunner()
	errMiddle := errors.New("middle")
	var thirdCalls atomic.Int32

	work := Sequence(
		SequenceStage{Name: "one", Run: func(ctx context.Context, p *Progress, in interface{}) (interface{}, error) {
			return "a", nil
		}},
		SequenceStage{Name: "two", Run: func(ctx context.Context, p *Progress, in interface{}) (interface{}, error) {
			assert.Equal(t, "a", in)
			return nil, errMiddle
		}},
		SequenceStage{Name: "three", Run: func(ctx context.Context, p *Progress, in interface{}) (interface{}, error) {
			thirdCalls.Add(1)
			return nil, nil
		}},
	)

	job := runner.Start(testMeta("seq"), work)
	waitDone(t, job)

	assert.ErrorIs(t, job.Snapshot().Err, errMiddle)
	assert.Equal(t, int32(0), thirdCalls.Load())
}
