package statemachine

import (
	"github.com/mautops/videoflow-gin/internal/model"
)

// Graph 简单有向图，记录合法的状态流转
type Graph[S comparable] map[S][]S

// Can 判断 from -> to 是否合法
func (g Graph[S]) Can(from, to S) bool {
	for _, t := range g[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Sources 返回能流转到 to 的全部状态
func (g Graph[S]) Sources(to S) []S {
	var out []S
	for from, targets := range g {
		for _, t := range targets {
			if t == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// OrderGraph 订单状态流转
// completed/failed 只能由 processing 进入
var OrderGraph = Graph[model.OrderStatus]{
	model.OrderStatusPending: {
		model.OrderStatusProcessing,
		model.OrderStatusCancelled,
	},
	model.OrderStatusProcessing: {
		model.OrderStatusCompleted,
		model.OrderStatusFailed,
		model.OrderStatusRefunded,
	},
	model.OrderStatusCompleted: {model.OrderStatusRefunded},
	model.OrderStatusFailed:    {model.OrderStatusRefunded},
}

// PaymentGraph 支付状态流转
var PaymentGraph = Graph[model.PaymentStatus]{
	model.PaymentStatusUnpaid:    {model.PaymentStatusPaid},
	model.PaymentStatusPaid:      {model.PaymentStatusRefunding},
	model.PaymentStatusRefunding: {model.PaymentStatusRefunded, model.PaymentStatusPaid},
}

// TaskGraph 任务状态流转
// 外部系统回报的倒退(processing -> queued)不视为流转
var TaskGraph = Graph[model.TaskStatus]{
	model.TaskStatusQueued: {
		model.TaskStatusProcessing,
		model.TaskStatusCompleted,
		model.TaskStatusFailed,
		model.TaskStatusTimeout,
	},
	model.TaskStatusProcessing: {
		model.TaskStatusCompleted,
		model.TaskStatusFailed,
		model.TaskStatusTimeout,
	},
}

// TaskOrderStatus 任务终态映射到订单状态
func TaskOrderStatus(s model.TaskStatus) (model.OrderStatus, bool) {
	switch s {
	case model.TaskStatusCompleted:
		return model.OrderStatusCompleted, true
	case model.TaskStatusFailed, model.TaskStatusTimeout:
		return model.OrderStatusFailed, true
	}
	return "", false
}
