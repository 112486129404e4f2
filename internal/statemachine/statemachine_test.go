package statemachine_test

import (
	"testing"

	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/statemachine"
	"github.com/stretchr/testify/assert"
)

var allActions = []model.ReviewAction{
	model.ActionInitialReview, model.ActionSubmitQuote, model.ActionAcceptQuote,
	model.ActionStartProduction, model.ActionDeliverResult, model.ActionRequestModification,
	model.ActionConfirmDelivery, model.ActionPublish, model.ActionTakeOffline, model.ActionRepublish,
}

// TestReviewTargets_Table 测试流转表中的合法边
func TestReviewTargets_Table(t *testing.T) {
	tests := []struct {
		from   model.ReviewStatus
		action model.ReviewAction
		to     model.ReviewStatus
	}{
		{model.ReviewStatusPendingInitial, model.ActionInitialReview, model.ReviewStatusPendingQuote},
		{model.ReviewStatusPendingInitial, model.ActionInitialReview, model.ReviewStatusInitialRejected},
		{model.ReviewStatusPendingQuote, model.ActionSubmitQuote, model.ReviewStatusQuoted},
		{model.ReviewStatusQuoted, model.ActionStartProduction, model.ReviewStatusProduction},
		{model.ReviewStatusPendingPayment, model.ActionStartProduction, model.ReviewStatusProduction},
		{model.ReviewStatusProduction, model.ActionDeliverResult, model.ReviewStatusPendingConfirm},
		{model.ReviewStatusPendingConfirm, model.ActionRequestModification, model.ReviewStatusModifying},
		{model.ReviewStatusModifying, model.ActionDeliverResult, model.ReviewStatusPendingReconfirm},
		{model.ReviewStatusPendingReconfirm, model.ActionConfirmDelivery, model.ReviewStatusPendingFinal},
		{model.ReviewStatusPendingFinal, model.ActionPublish, model.ReviewStatusPublished},
		{model.ReviewStatusPublished, model.ActionTakeOffline, model.ReviewStatusOffline},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			assert.True(t, statemachine.CanReview(tt.from, tt.action, tt.to))
		})
	}
}

// TestReviewTargets_Illegal 测试表外组合全部非法
func TestReviewTargets_Illegal(t *testing.T) {
	legal := map[model.ReviewStatus]map[model.ReviewAction]bool{}
	for _, e := range statemachine.ReviewEdges() {
		if legal[e.From] == nil {
			legal[e.From] = map[model.ReviewAction]bool{}
		}
		legal[e.From][e.Action] = true
	}

	for _, s := range model.AllReviewStatuses {
		for _, a := range allActions {
			_, ok := statemachine.ReviewTargets(s, a)
			assert.Equal(t, legal[s][a], ok, "%s/%s", s, a)
		}
	}

	assert.False(t, statemachine.CanReview(model.ReviewStatusPendingQuote, model.ActionSubmitQuote, model.ReviewStatusPublished))
	assert.Empty(t, statemachine.AllowedReviewActions(model.ReviewStatusInitialRejected))
}

// TestActorAllowed 测试操作人约束
func TestActorAllowed(t *testing.T) {
	assert.True(t, statemachine.ActorAllowed(model.ActionPublish, model.OperatorAdmin))
	assert.False(t, statemachine.ActorAllowed(model.ActionPublish, model.OperatorCustomer))
	assert.True(t, statemachine.ActorAllowed(model.ActionRequestModification, model.OperatorCustomer))
	assert.False(t, statemachine.ActorAllowed(model.ActionRequestModification, model.OperatorAdmin))
	assert.True(t, statemachine.ActorAllowed(model.ActionStartProduction, model.OperatorSystem))
}

// TestOrderGraph 测试订单流转
func TestOrderGraph(t *testing.T) {
	assert.True(t, statemachine.OrderGraph.Can(model.OrderStatusPending, model.OrderStatusProcessing))
	assert.True(t, statemachine.OrderGraph.Can(model.OrderStatusProcessing, model.OrderStatusCompleted))
	assert.False(t, statemachine.OrderGraph.Can(model.OrderStatusPending, model.OrderStatusCompleted))
	assert.False(t, statemachine.OrderGraph.Can(model.OrderStatusCompleted, model.OrderStatusFailed))

	// completed/failed 只能由 processing 进入
	assert.Equal(t, []model.OrderStatus{model.OrderStatusProcessing}, statemachine.OrderGraph.Sources(model.OrderStatusCompleted))
	assert.Equal(t, []model.OrderStatus{model.OrderStatusProcessing}, statemachine.OrderGraph.Sources(model.OrderStatusFailed))
}

// TestTaskGraph 测试任务流转
func TestTaskGraph(t *testing.T) {
	assert.True(t, statemachine.TaskGraph.Can(model.TaskStatusQueued, model.TaskStatusTimeout))
	assert.False(t, statemachine.TaskGraph.Can(model.TaskStatusProcessing, model.TaskStatusQueued))
	assert.False(t, statemachine.TaskGraph.Can(model.TaskStatusCompleted, model.TaskStatusFailed))

	s, ok := statemachine.TaskOrderStatus(model.TaskStatusTimeout)
	assert.True(t, ok)
	assert.Equal(t, model.OrderStatusFailed, s)

	_, ok = statemachine.TaskOrderStatus(model.TaskStatusProcessing)
	assert.False(t, ok)
}
