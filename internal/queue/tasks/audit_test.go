package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/services"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	if _, err := logger.Init("info", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockAuditService struct {
	mock.Mock
}

func (m *mockAuditService) Audit(ctx context.Context, treeID uuid.UUID) (*services.AuditReport, error) {
	args := m.Called(ctx, treeID)
	if v := args.Get(0); v != nil {
		return v.(*services.AuditReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuditService) AuditAll(ctx context.Context, parallel int) ([]*services.AuditReport, error) {
	args := m.Called(ctx, parallel)
	if v := args.Get(0); v != nil {
		return v.([]*services.AuditReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func auditTask(t *testing.T, treeID string) *asynq.Task {
	t.Helper()
	pb, err := json.Marshal(AuditPayload{TreeID: treeID})
	require.NoError(t, err)
	return asynq.NewTask(TypeTreeAudit, pb)
}

func TestNewAuditTask(t *testing.T) {
	id := uuid.New()
	task, err := NewAuditTask(id)
	require.NoError(t, err)
	assert.Equal(t, TypeTreeAudit, task.Type())

	var p AuditPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, id.String(), p.TreeID)
}

func TestAuditTaskHandler_HandleAudit(t *testing.T) {
	treeID := uuid.New()

	t.Run("healthy tree", func(t *testing.T) {
		svc := &mockAuditService{}
		svc.On("Audit", mock.Anything, treeID).Return(&services.AuditReport{TreeID: treeID}, nil).Once()

		err := NewAuditTaskHandler(svc, 2).HandleAudit(context.Background(), auditTask(t, treeID.String()))
		require.NoError(t, err)
		svc.AssertExpectations(t)
	})

	t.Run("findings do not fail the task", func(t *testing.T) {
		svc := &mockAuditService{}
		report := &services.AuditReport{
			TreeID:    treeID,
			Anomalies: []graph.Anomaly{{Kind: graph.AnomalyDangling}},
		}
		svc.On("Audit", mock.Anything, treeID).Return(report, appErr.New(appErr.CodeIntegrity, "tree failed integrity audit")).Once()

		err := NewAuditTaskHandler(svc, 2).HandleAudit(context.Background(), auditTask(t, treeID.String()))
		require.NoError(t, err)
		svc.AssertExpectations(t)
	})

	t.Run("missing tree is not retried", func(t *testing.T) {
		svc := &mockAuditService{}
		svc.On("Audit", mock.Anything, treeID).Return(nil, appErr.New(appErr.CodeNotFound, "tree not found")).Once()

		err := NewAuditTaskHandler(svc, 2).HandleAudit(context.Background(), auditTask(t, treeID.String()))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		svc := &mockAuditService{}
		svc.On("Audit", mock.Anything, treeID).Return(nil, appErr.New(appErr.CodeUnavailable, "busy")).Once()

		err := NewAuditTaskHandler(svc, 2).HandleAudit(context.Background(), auditTask(t, treeID.String()))
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("bad payload", func(t *testing.T) {
		svc := &mockAuditService{}
		h := NewAuditTaskHandler(svc, 2)

		err := h.HandleAudit(context.Background(), asynq.NewTask(TypeTreeAudit, []byte("{")))
		assert.True(t, errors.Is(err, asynq.SkipRetry))

		err = h.HandleAudit(context.Background(), auditTask(t, "nope"))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
		svc.AssertNotCalled(t, "Audit", mock.Anything, mock.Anything)
	})
}

func TestAuditTaskHandler_HandleAuditAll(t *testing.T) {
	svc := &mockAuditService{}
	svc.On("AuditAll", mock.Anything, 3).Return([]*services.AuditReport{
		{TreeID: uuid.New()},
		{TreeID: uuid.New(), Cycle: []uuid.UUID{uuid.New()}},
	}, nil).Once()

	err := NewAuditTaskHandler(svc, 3).HandleAuditAll(context.Background(), asynq.NewTask(TypeAuditAll, nil))
	require.NoError(t, err)
	svc.AssertExpectations(t)

	failing := &mockAuditService{}
	failing.On("AuditAll", mock.Anything, 3).Return(nil, errors.New("store down")).Once()
	err = NewAuditTaskHandler(failing, 3).HandleAuditAll(context.Background(), asynq.NewTask(TypeAuditAll, nil))
	assert.Error(t, err)
}

func TestEnqueuer_NilClientSkips(t *testing.T) {
	require.NoError(t, NewEnqueuer(nil).EnqueueAudit(context.Background(), uuid.New()))
}
