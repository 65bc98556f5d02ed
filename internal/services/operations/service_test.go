package operations

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/jobs"
	"github.com/ternarybob/vigil/internal/models"
)

// fakeContent records calls and returns canned results
type fakeContent struct {
	checkErr     error
	release      chan struct{}
	publishCalls atomic.Int32
	gotLinks     *models.LinkCheckResult
}

func (f *fakeContent) ExportModule(ctx context.Context, module string, report interfaces.Reporter) (*models.ExportResult, error) {
	if f.release != nil {
		<-f.release
	}
	report.Print("exporting " + module)
	return &models.ExportResult{Module: module, Files: 1}, nil
}

func (f *fakeContent) DeleteModule(ctx context.Context, module string, report interfaces.Reporter) (*models.DeleteResult, error) {
	return &models.DeleteResult{Module: module, FilesDeleted: 2}, nil
}

func (f *fakeContent) CheckLinks(ctx context.Context, projectID string, report interfaces.Reporter) (*models.LinkCheckResult, error) {
	report.Print("checking links")
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &models.LinkCheckResult{ProjectID: projectID, FilesChecked: 4}, nil
}

func (f *fakeContent) PublishProject(ctx context.Context, projectID string, links *models.LinkCheckResult, report interfaces.Reporter) (*models.PublishResult, error) {
	f.publishCalls.Add(1)
	f.gotLinks = links
	report.Print("publishing")
	return &models.PublishResult{ProjectID: projectID, FilesPublished: 4}, nil
}

func newTestService(content interfaces.ContentRepository) *Service {
	logger := arbor.NewLogger()
	return NewService(jobs.NewRunner(logger, nil, 0), jobs.NewResponder(logger, nil), content, logger)
}

func pollUntilDone(t *testing.T, svc *Service, registry *jobs.Registry, kind Kind, target string) jobs.PollDone {
	t.Helper()
	var cursor uint64
	var done jobs.PollDone
	require.Eventually(t, func() bool {
		result, err := svc.Poll(registry, kind, target, "", cursor)
		if err != nil {
			return false
		}
		switch r := result.(type) {
		case jobs.PollProgress:
			cursor = r.Cursor
			return false
		case jobs.PollDone:
			done = r
			return true
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return done
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("publish-project")
	require.NoError(t, err)
	assert.Equal(t, KindPublishProject, k)

	_, err = ParseKind("format-disk")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "export:intro", Key(KindExportModule, "intro"))
	assert.Equal(t, "delete:intro", Key(KindDeleteModule, "intro"))
	assert.Equal(t, "publish:7", Key(KindPublishProject, "7"))
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep(url.Values{"action": {"start"}, "kind": {"export-module"}, "target": {"intro"}})
	require.NoError(t, err)
	assert.Equal(t, StepStart{Kind: KindExportModule, Target: "intro"}, step)

	step, err = ParseStep(url.Values{"action": {"poll"}, "kind": {"publish-project"}, "target": {"7"}, "cursor": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, StepPoll{Kind: KindPublishProject, Target: "7", Cursor: 3}, step)

	step, err = ParseStep(url.Values{"action": {"poll"}, "kind": {"export-module"}, "target": {"intro"}, "job_id": {"job_1"}, "cursor": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, StepPoll{Kind: KindExportModule, Target: "intro", JobID: "job_1", Cursor: 3}, step)

	_, err = ParseStep(url.Values{"action": {"cancel"}, "kind": {"export-module"}})
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = ParseStep(url.Values{"action": {"poll"}, "kind": {"nope"}})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = ParseStep(url.Values{"action": {"poll"}, "kind": {"export-module"}, "cursor": {"-1"}})
	assert.Error(t, err)
}

func TestService_StartValidatesTarget(t *testing.T) {
	svc := newTestService(&fakeContent{})
	registry := jobs.NewRegistry(arbor.NewLogger(), 0)

	_, err := svc.Start(registry, "s1", KindExportModule, StartRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Start(registry, "s1", KindExportModule, StartRequest{Target: "a/b"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Start(registry, "s1", Kind("bogus"), StartRequest{Target: "a"})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, 0, registry.Len())
}

func TestService_ExportRunsOncePerKey(t *testing.T) {
	content := &fakeContent{release: make(chan struct{})}
	svc := newTestService(content)
	registry := jobs.NewRegistry(arbor.NewLogger(), 0)

	h, err := svc.Start(registry, "s1", KindExportModule, StartRequest{Target: "intro"})
	require.NoError(t, err)
	assert.Equal(t, "export:intro", h.Key())
	assert.Equal(t, "s1", h.Job().Meta().SessionID)

	again, err := svc.Start(registry, "s1", KindExportModule, StartRequest{Target: "intro"})
	assert.ErrorIs(t, err, jobs.ErrAlreadyRunning)
	assert.Same(t, h, again)

	close(content.release)
	done := pollUntilDone(t, svc, registry, KindExportModule, "intro")
	require.True(t, done.Outcome.OK())
	assert.Equal(t, &models.ExportResult{Module: "intro", Files: 1}, done.Outcome.Result)
}

func TestService_PublishChainsCheckIntoPublish(t *testing.T) {
	content := &fakeContent{}
	svc := newTestService(content)
	registry := jobs.NewRegistry(arbor.NewLogger(), 0)

	_, err := svc.Start(registry, "s1", KindPublishProject, StartRequest{Target: "7"})
	require.NoError(t, err)

	done := pollUntilDone(t, svc, registry, KindPublishProject, "7")
	require.True(t, done.Outcome.OK())
	assert.Equal(t, int32(1), content.publishCalls.Load())
	require.NotNil(t, content.gotLinks)
	assert.Equal(t, 4, content.gotLinks.FilesChecked)
	assert.Equal(t, "publish", done.Stage.Name)
}

func TestService_PublishSkippedWhenCheckFails(t *testing.T) {
	errCheck := errors.New("link index unreadable")
	content := &fakeContent{checkErr: errCheck}
	svc := newTestService(content)
	registry := jobs.NewRegistry(arbor.NewLogger(), 0)

	_, err := svc.Start(registry, "s1", KindPublishProject, StartRequest{Target: "7"})
	require.NoError(t, err)

	done := pollUntilDone(t, svc, registry, KindPublishProject, "7")
	assert.False(t, done.Outcome.OK())
	assert.ErrorIs(t, done.Outcome.Err, errCheck)
	assert.Equal(t, int32(0), content.publishCalls.Load())
}
