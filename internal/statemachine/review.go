package statemachine

import (
	"github.com/mautops/videoflow-gin/internal/model"
)

// ReviewEdge 审核状态机的一条边
type ReviewEdge struct {
	From   model.ReviewStatus
	Action model.ReviewAction
	To     []model.ReviewStatus // 同一动作可能有多个结果，由载荷决定
}

// reviewEdges 审核流转表，未列出的 (状态, 动作) 组合一律非法
var reviewEdges = []ReviewEdge{
	{model.ReviewStatusPendingInitial, model.ActionInitialReview,
		[]model.ReviewStatus{model.ReviewStatusPendingQuote, model.ReviewStatusInitialRejected}},
	{model.ReviewStatusPendingQuote, model.ActionSubmitQuote,
		[]model.ReviewStatus{model.ReviewStatusQuoted}},
	{model.ReviewStatusQuoted, model.ActionAcceptQuote,
		[]model.ReviewStatus{model.ReviewStatusPendingPayment}},
	{model.ReviewStatusQuoted, model.ActionStartProduction,
		[]model.ReviewStatus{model.ReviewStatusProduction}},
	{model.ReviewStatusPendingPayment, model.ActionStartProduction,
		[]model.ReviewStatus{model.ReviewStatusProduction}},
	{model.ReviewStatusProduction, model.ActionDeliverResult,
		[]model.ReviewStatus{model.ReviewStatusPendingConfirm}},
	{model.ReviewStatusPendingConfirm, model.ActionConfirmDelivery,
		[]model.ReviewStatus{model.ReviewStatusPendingFinal}},
	{model.ReviewStatusPendingConfirm, model.ActionRequestModification,
		[]model.ReviewStatus{model.ReviewStatusModifying}},
	{model.ReviewStatusModifying, model.ActionDeliverResult,
		[]model.ReviewStatus{model.ReviewStatusPendingReconfirm}},
	{model.ReviewStatusPendingReconfirm, model.ActionConfirmDelivery,
		[]model.ReviewStatus{model.ReviewStatusPendingFinal}},
	{model.ReviewStatusPendingReconfirm, model.ActionRequestModification,
		[]model.ReviewStatus{model.ReviewStatusModifying}},
	{model.ReviewStatusPendingFinal, model.ActionPublish,
		[]model.ReviewStatus{model.ReviewStatusPublished}},
	{model.ReviewStatusPublished, model.ActionTakeOffline,
		[]model.ReviewStatus{model.ReviewStatusOffline}},
	{model.ReviewStatusOffline, model.ActionRepublish,
		[]model.ReviewStatus{model.ReviewStatusPublished, model.ReviewStatusPendingQuote}},
}

// actionActors 每个动作允许的操作人类型
var actionActors = map[model.ReviewAction][]model.OperatorType{
	model.ActionUpload:              {model.OperatorCustomer, model.OperatorAdmin},
	model.ActionInitialReview:       {model.OperatorAdmin},
	model.ActionSubmitQuote:         {model.OperatorAdmin},
	model.ActionAcceptQuote:         {model.OperatorCustomer},
	model.ActionStartProduction:     {model.OperatorAdmin, model.OperatorSystem},
	model.ActionDeliverResult:       {model.OperatorAdmin},
	model.ActionRequestModification: {model.OperatorCustomer},
	model.ActionConfirmDelivery:     {model.OperatorCustomer},
	model.ActionPublish:             {model.OperatorAdmin},
	model.ActionTakeOffline:         {model.OperatorAdmin},
	model.ActionRepublish:           {model.OperatorAdmin},
}

type reviewKey struct {
	from   model.ReviewStatus
	action model.ReviewAction
}

var reviewIndex = func() map[reviewKey][]model.ReviewStatus {
	idx := make(map[reviewKey][]model.ReviewStatus, len(reviewEdges))
	for _, e := range reviewEdges {
		idx[reviewKey{e.From, e.Action}] = e.To
	}
	return idx
}()

// ReviewTargets 返回 (状态, 动作) 允许的目标状态
func ReviewTargets(from model.ReviewStatus, action model.ReviewAction) ([]model.ReviewStatus, bool) {
	to, ok := reviewIndex[reviewKey{from, action}]
	return to, ok
}

// CanReview 判断审核流转是否合法
func CanReview(from model.ReviewStatus, action model.ReviewAction, to model.ReviewStatus) bool {
	targets, ok := ReviewTargets(from, action)
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedReviewActions 返回当前状态下可执行的动作
func AllowedReviewActions(from model.ReviewStatus) []model.ReviewAction {
	var actions []model.ReviewAction
	for _, e := range reviewEdges {
		if e.From == from {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

// ActorAllowed 判断操作人类型能否执行动作
func ActorAllowed(action model.ReviewAction, actor model.OperatorType) bool {
	for _, a := range actionActors[action] {
		if a == actor {
			return true
		}
	}
	return false
}

// ReviewEdges 返回流转表副本
func ReviewEdges() []ReviewEdge {
	out := make([]ReviewEdge, len(reviewEdges))
	copy(out, reviewEdges)
	return out
}
