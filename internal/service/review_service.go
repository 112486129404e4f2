package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/integration"
	"github.com/mautops/videoflow-gin/internal/metrics"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/statemachine"
	"github.com/mautops/videoflow-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// 重新上架策略
const (
	RepublishSkipQuote  = "skip_quote"  // 直接回到 published
	RepublishFreshCycle = "fresh_cycle" // 回到 pending_quote 重新走报价与制作
)

// ReviewService 作品审核流程服务接口
type ReviewService interface {
	Create(ctx context.Context, actor Actor, req *CreateReviewItemRequest) (*model.ReviewItemModel, error)
	Get(ctx context.Context, videoID string, actor Actor) (*model.ReviewItemModel, error)
	SubmitInitialReview(ctx context.Context, videoID string, actor Actor, req *InitialReviewRequest) (*model.ReviewItemModel, error)
	SubmitQuote(ctx context.Context, videoID string, actor Actor, req *QuoteRequest) (*model.ReviewItemModel, error)
	AcceptQuote(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error)
	StartProduction(ctx context.Context, videoID string, actor Actor, req *StartProductionRequest) (*model.ReviewItemModel, error)
	DeliverResult(ctx context.Context, videoID string, actor Actor, req *DeliverResultRequest) (*model.ReviewItemModel, error)
	RequestModification(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error)
	ConfirmDelivery(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error)
	Publish(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error)
	TakeOffline(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error)
	Republish(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error)
	AddMessage(ctx context.Context, videoID string, actor Actor, req *MessageRequest) (*model.ReviewMessageModel, error)
	ListMessages(ctx context.Context, videoID string, actor Actor, page, pageSize int) ([]model.ReviewMessageModel, docstore.PageInfo, error)
	UpdateSettings(cfg config.ReviewConfig)
}

// CreateReviewItemRequest 上传作品请求
// @Description 创作者上传素材的请求参数
type CreateReviewItemRequest struct {
	Title           string   `json:"title" example:"毕业季换脸短片" binding:"required"` // 标题
	Description     string   `json:"description" example:"需要 30 秒竖屏"`            // 描述
	RawMaterialURLs []string `json:"raw_material_urls" binding:"required,min=1"` // 原始素材地址
}

// InitialReviewRequest 初审请求
// @Description 初审通过或驳回
type InitialReviewRequest struct {
	Approved     bool   `json:"approved"`                     // 是否通过
	RejectReason string `json:"reject_reason" example:"素材模糊"` // 驳回原因，驳回时必填
	Content      string `json:"content"`                      // 备注
}

// QuoteRequest 报价请求
// @Description 管理员报价
type QuoteRequest struct {
	QuotePrice    int64  `json:"quote_price" example:"8000" binding:"required"` // 报价，单位: 分
	EstimatedDays int    `json:"estimated_days" example:"3" binding:"required"` // 预计制作天数
	Content       string `json:"content"`                                       // 备注
}

// StartProductionRequest 开始制作请求
// @Description 支付确认后进入制作
type StartProductionRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"` // 外部支付流水号
	Content       string `json:"content"`                           // 备注
}

// DeliverResultRequest 交付成片请求
// @Description 管理员交付成片或修改稿
type DeliverResultRequest struct {
	ResultVideoURL string `json:"result_video_url" binding:"required"` // 成片地址
	Content        string `json:"content"`                             // 备注
}

// CommentRequest 只带备注的操作请求
type CommentRequest struct {
	Content string `json:"content"` // 备注或原因
}

// MessageRequest 留言请求
type MessageRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

// reviewPlan 一次审核动作的目标与附加更新
type reviewPlan struct {
	to      model.ReviewStatus
	set     docstore.Set
	cas     []docstore.Cond
	content string
	quote   *int64
	event   string
}

// reviewService 审核流程服务实现
type reviewService struct {
	repos  *repository.Repositories
	authz  Authorizer
	logger logrus.FieldLogger
	now    func() time.Time

	mu       sync.RWMutex
	settings config.ReviewConfig
}

// NewReviewService 创建审核流程服务
func NewReviewService(repos *repository.Repositories, cfg config.ReviewConfig, logger logrus.FieldLogger, authz Authorizer) ReviewService {
	return &reviewService{
		repos:    repos,
		authz:    authz,
		logger:   logger.WithField("component", "review_service"),
		now:      time.Now,
		settings: cfg,
	}
}

// UpdateSettings 热更新审核配置
func (s *reviewService) UpdateSettings(cfg config.ReviewConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg
}

func (s *reviewService) config() config.ReviewConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Create 创作者上传作品，进入 pending_initial
func (s *reviewService) Create(ctx context.Context, actor Actor, req *CreateReviewItemRequest) (*model.ReviewItemModel, error) {
	if !statemachine.ActorAllowed(model.ActionUpload, actor.Type) {
		return nil, apperr.ErrForbidden
	}

	title, err := utils.TrimAndValidate(req.Title, 255)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "title: %v", err)
	}
	if len(req.RawMaterialURLs) == 0 {
		return nil, apperr.New(apperr.ErrValidation, "at least one raw material is required")
	}
	for _, u := range req.RawMaterialURLs {
		if err := utils.ValidateURL(u); err != nil {
			return nil, apperr.New(apperr.ErrValidation, "raw material %q: %v", u, err)
		}
	}
	materials, err := json.Marshal(req.RawMaterialURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal materials: %w", err)
	}

	now := s.now()
	item := &model.ReviewItemModel{
		ID:              uuid.New().String(),
		CreatorID:       actor.ID,
		Title:           title,
		Description:     utils.SanitizeString(req.Description),
		RawMaterialURLs: materials,
		ReviewStatus:    model.ReviewStatusPendingInitial,
		MaxModifyCount:  s.config().MaxModifyCount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := item.Validate(); err != nil {
		return nil, apperr.New(apperr.ErrValidation, "%v", err)
	}

	err = s.repos.Apply(ctx, repository.Change{
		Inserts: []repository.Doc{{Coll: model.CollReviewItems, Value: item}},
		Audit: repository.Doc{Coll: model.CollReviewLogs, Value: s.newLog(item.ID, model.ActionUpload, actor,
			"", model.ReviewStatusPendingInitial, model.LogResultAccepted, title, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create review item: %w", err)
	}

	if s.authz != nil {
		if err := s.authz.SetRelation(ctx, actor.ID, RelationOwner, ObjectReviewItem, item.ID); err != nil {
			s.logger.WithError(err).WithField("video_id", item.ID).Warn("Failed to set owner relation")
		}
	}

	metrics.RecordReviewTransition(string(model.ActionUpload), string(model.LogResultAccepted))
	return item, nil
}

// Get 读取作品，创作者只能读取自己的作品
func (s *reviewService) Get(ctx context.Context, videoID string, actor Actor) (*model.ReviewItemModel, error) {
	item, err := s.repos.Reviews.FindItem(ctx, videoID)
	if err != nil {
		return nil, storeError(err, "review item "+videoID)
	}
	if !actor.IsAdmin() && item.ReviewStatus != model.ReviewStatusPublished {
		ok, err := owns(ctx, s.authz, actor, item.CreatorID, ObjectReviewItem, item.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrForbidden
		}
	}
	return item, nil
}

// SubmitInitialReview 初审
func (s *reviewService) SubmitInitialReview(ctx context.Context, videoID string, actor Actor, req *InitialReviewRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionInitialReview, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		if req.Approved {
			return &reviewPlan{
				to:      model.ReviewStatusPendingQuote,
				set:     docstore.Set{"reject_reason": ""},
				content: req.Content,
			}, nil
		}
		reason := strings.TrimSpace(req.RejectReason)
		if reason == "" {
			return nil, apperr.New(apperr.ErrValidation, "reject reason is required")
		}
		return &reviewPlan{
			to:      model.ReviewStatusInitialRejected,
			set:     docstore.Set{"reject_reason": reason},
			content: reason,
		}, nil
	})
}

// SubmitQuote 报价
func (s *reviewService) SubmitQuote(ctx context.Context, videoID string, actor Actor, req *QuoteRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionSubmitQuote, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		if req.QuotePrice <= 0 {
			return nil, apperr.New(apperr.ErrValidation, "quote price must be positive")
		}
		if req.EstimatedDays <= 0 {
			return nil, apperr.New(apperr.ErrValidation, "estimated days must be positive")
		}
		price := req.QuotePrice
		return &reviewPlan{
			to: model.ReviewStatusQuoted,
			set: docstore.Set{
				"quote_price":    req.QuotePrice,
				"estimated_days": req.EstimatedDays,
			},
			content: req.Content,
			quote:   &price,
		}, nil
	})
}

// AcceptQuote 创作者接受报价，等待支付
func (s *reviewService) AcceptQuote(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionAcceptQuote, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		return &reviewPlan{to: model.ReviewStatusPendingPayment, content: commentOf(req)}, nil
	})
}

// StartProduction 支付确认后进入制作
func (s *reviewService) StartProduction(ctx context.Context, videoID string, actor Actor, req *StartProductionRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionStartProduction, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		txn := strings.TrimSpace(req.TransactionID)
		if txn == "" {
			return nil, apperr.New(apperr.ErrValidation, "payment confirmation is required")
		}
		content := "transaction_id=" + txn
		if req.Content != "" {
			content += "; " + req.Content
		}
		return &reviewPlan{to: model.ReviewStatusProduction, content: content}, nil
	})
}

// DeliverResult 交付成片 (production) 或修改稿 (modifying)
func (s *reviewService) DeliverResult(ctx context.Context, videoID string, actor Actor, req *DeliverResultRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionDeliverResult, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		if err := utils.ValidateURL(req.ResultVideoURL); err != nil {
			return nil, apperr.New(apperr.ErrValidation, "result video url: %v", err)
		}
		to := model.ReviewStatusPendingConfirm
		if item.ReviewStatus == model.ReviewStatusModifying {
			to = model.ReviewStatusPendingReconfirm
		}
		return &reviewPlan{
			to: to,
			set: docstore.Set{
				"result_video_url": req.ResultVideoURL,
				"delivery_count":   item.DeliveryCount + 1,
			},
			content: req.Content,
		}, nil
	})
}

// RequestModification 创作者要求修改，修改次数有上限
func (s *reviewService) RequestModification(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionRequestModification, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		if item.ModifyCount >= item.MaxModifyCount {
			return nil, apperr.New(apperr.ErrModificationLimitExceeded, "%d of %d modifications used", item.ModifyCount, item.MaxModifyCount)
		}
		return &reviewPlan{
			to:      model.ReviewStatusModifying,
			set:     docstore.Set{"modify_count": item.ModifyCount + 1},
			cas:     []docstore.Cond{docstore.Eq("modify_count", item.ModifyCount)},
			content: commentOf(req),
		}, nil
	})
}

// ConfirmDelivery 创作者确认成片
func (s *reviewService) ConfirmDelivery(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionConfirmDelivery, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		return &reviewPlan{to: model.ReviewStatusPendingFinal, content: commentOf(req)}, nil
	})
}

// Publish 上架，要求已报价且至少交付过一次
func (s *reviewService) Publish(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionPublish, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		if !item.Publishable() {
			return nil, apperr.New(apperr.ErrValidation, "quote price and a delivered result are required to publish")
		}
		return &reviewPlan{
			to:      model.ReviewStatusPublished,
			set:     docstore.Set{"published_at": s.now()},
			content: commentOf(req),
			event:   integration.EventReviewPublished,
		}, nil
	})
}

// TakeOffline 下架
func (s *reviewService) TakeOffline(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error) {
	return s.transition(ctx, videoID, actor, model.ActionTakeOffline, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		return &reviewPlan{
			to:      model.ReviewStatusOffline,
			content: commentOf(req),
			event:   integration.EventReviewOffline,
		}, nil
	})
}

// Republish 重新上架，按策略直接上架或回到报价环节
func (s *reviewService) Republish(ctx context.Context, videoID string, actor Actor, req *CommentRequest) (*model.ReviewItemModel, error) {
	policy := s.config().RepublishPolicy
	return s.transition(ctx, videoID, actor, model.ActionRepublish, func(item *model.ReviewItemModel) (*reviewPlan, error) {
		if policy == RepublishFreshCycle {
			return &reviewPlan{
				to: model.ReviewStatusPendingQuote,
				set: docstore.Set{
					"quote_price":      int64(0),
					"estimated_days":   0,
					"modify_count":     0,
					"delivery_count":   0,
					"result_video_url": "",
					"published_at":     nil,
				},
				content: commentOf(req),
			}, nil
		}
		if !item.Publishable() {
			return nil, apperr.New(apperr.ErrValidation, "quote price and a delivered result are required to publish")
		}
		return &reviewPlan{
			to:      model.ReviewStatusPublished,
			set:     docstore.Set{"published_at": s.now()},
			content: commentOf(req),
			event:   integration.EventReviewPublished,
		}, nil
	})
}

// AddMessage 审核沟通留言，管理员或创作者可用
func (s *reviewService) AddMessage(ctx context.Context, videoID string, actor Actor, req *MessageRequest) (*model.ReviewMessageModel, error) {
	item, err := s.repos.Reviews.FindItem(ctx, videoID)
	if err != nil {
		return nil, storeError(err, "review item "+videoID)
	}
	if err := s.authorize(ctx, item, actor); err != nil {
		return nil, err
	}

	for _, u := range req.Attachments {
		if err := utils.ValidateURL(u); err != nil {
			return nil, apperr.New(apperr.ErrValidation, "attachment %q: %v", u, err)
		}
	}
	msg := &model.ReviewMessageModel{
		VideoID:    videoID,
		SenderID:   actor.ID,
		SenderType: actor.Type,
		Content:    utils.SanitizeString(req.Content),
	}
	if len(req.Attachments) > 0 {
		msg.Attachments, _ = json.Marshal(req.Attachments)
	}
	if err := s.repos.Reviews.AddMessage(ctx, msg); err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, err)
	}
	return msg, nil
}

// ListMessages 分页读取留言
func (s *reviewService) ListMessages(ctx context.Context, videoID string, actor Actor, page, pageSize int) ([]model.ReviewMessageModel, docstore.PageInfo, error) {
	item, err := s.repos.Reviews.FindItem(ctx, videoID)
	if err != nil {
		return nil, docstore.PageInfo{}, storeError(err, "review item "+videoID)
	}
	if err := s.authorize(ctx, item, actor); err != nil {
		return nil, docstore.PageInfo{}, err
	}
	return s.repos.Reviews.Messages(ctx, videoID, page, pageSize)
}

// authorize 管理员或作品创作者
func (s *reviewService) authorize(ctx context.Context, item *model.ReviewItemModel, actor Actor) error {
	if actor.IsAdmin() || actor.Type == model.OperatorSystem {
		return nil
	}
	ok, err := owns(ctx, s.authz, actor, item.CreatorID, ObjectReviewItem, item.ID)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if !ok {
		return apperr.ErrForbidden
	}
	return nil
}

// transition 执行一次审核动作
// 读取当前状态 -> 校验操作人与流转表 -> 计算目标 -> 条件更新 + 审计日志
// 被拒绝的尝试写入 rejected 日志，记录本身不变
func (s *reviewService) transition(
	ctx context.Context,
	videoID string,
	actor Actor,
	action model.ReviewAction,
	decide func(item *model.ReviewItemModel) (*reviewPlan, error),
) (*model.ReviewItemModel, error) {
	item, err := s.repos.Reviews.FindItem(ctx, videoID)
	if err != nil {
		return nil, storeError(err, "review item "+videoID)
	}

	if !statemachine.ActorAllowed(action, actor.Type) {
		return nil, s.reject(ctx, item, action, actor,
			apperr.New(apperr.ErrForbidden, "%s cannot %s", actor.Type, action))
	}
	if actor.Type == model.OperatorCustomer {
		if err := s.authorize(ctx, item, actor); err != nil {
			if errors.Is(err, apperr.ErrForbidden) {
				return nil, s.reject(ctx, item, action, actor,
					apperr.New(apperr.ErrForbidden, "%s does not own %s", actor.ID, item.ID))
			}
			return nil, err
		}
	}

	from := item.ReviewStatus
	if _, ok := statemachine.ReviewTargets(from, action); !ok {
		return nil, s.reject(ctx, item, action, actor,
			apperr.New(apperr.ErrInvalidStateTransition, "%s is not allowed in %s", action, from))
	}

	plan, err := decide(item)
	if err != nil {
		return nil, s.reject(ctx, item, action, actor, err)
	}
	if !statemachine.CanReview(from, action, plan.to) {
		return nil, s.reject(ctx, item, action, actor,
			apperr.New(apperr.ErrInvalidStateTransition, "%s cannot move %s to %s", action, from, plan.to))
	}

	set := docstore.Set{"review_status": plan.to, "updated_at": s.now()}
	for k, v := range plan.set {
		set[k] = v
	}
	filter := docstore.Where(
		docstore.Eq("id", videoID),
		docstore.Eq("review_status", from),
		docstore.NotDeleted(),
	).And(plan.cas...)

	change := repository.Change{
		Updates: []repository.Update{{Coll: model.CollReviewItems, Filter: filter, Set: set}},
		Audit: repository.Doc{Coll: model.CollReviewLogs, Value: s.newLog(videoID, action, actor,
			from, plan.to, model.LogResultAccepted, plan.content, plan.quote)},
	}
	if plan.event != "" {
		evt, err := integration.NewEvent(videoID, plan.event, map[string]interface{}{
			"video_id":   videoID,
			"creator_id": item.CreatorID,
			"from":       from,
			"to":         plan.to,
		})
		if err != nil {
			return nil, err
		}
		change.Inserts = append(change.Inserts, eventDoc(evt))
	}

	if err := s.repos.Apply(ctx, change); err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return nil, s.reject(ctx, item, action, actor, apperr.Wrap(apperr.ErrConcurrentModification, err))
		}
		return nil, fmt.Errorf("failed to apply %s: %w", action, err)
	}

	metrics.RecordReviewTransition(string(action), string(model.LogResultAccepted))
	s.logger.WithFields(logrus.Fields{
		"video_id": videoID,
		"action":   action,
		"from":     from,
		"to":       plan.to,
		"operator": actor.ID,
	}).Info("Review transition applied")

	updated, err := s.repos.Reviews.FindItem(ctx, videoID)
	if err != nil {
		return nil, storeError(err, "review item "+videoID)
	}
	return updated, nil
}

// reject 记录被拒绝的尝试并返回原错误
func (s *reviewService) reject(ctx context.Context, item *model.ReviewItemModel, action model.ReviewAction, actor Actor, cause error) error {
	log := s.newLog(item.ID, action, actor, item.ReviewStatus, item.ReviewStatus, model.LogResultRejected, cause.Error(), nil)
	if err := s.repos.AppendAudit(ctx, repository.Doc{Coll: model.CollReviewLogs, Value: log}); err != nil {
		s.logger.WithError(err).WithField("video_id", item.ID).Error("Failed to record rejected review action")
	}

	metrics.RecordReviewTransition(string(action), string(model.LogResultRejected))
	s.logger.WithFields(logrus.Fields{
		"video_id": item.ID,
		"action":   action,
		"status":   item.ReviewStatus,
		"operator": actor.ID,
		"code":     apperr.CodeOf(cause),
	}).Warn("Review action rejected")
	return cause
}

func (s *reviewService) newLog(
	videoID string,
	action model.ReviewAction,
	actor Actor,
	from, to model.ReviewStatus,
	result model.LogResult,
	content string,
	quote *int64,
) *model.ReviewLogModel {
	return &model.ReviewLogModel{
		ID:           uuid.New().String(),
		VideoID:      videoID,
		Action:       action,
		OperatorID:   actor.ID,
		OperatorType: actor.Type,
		Content:      content,
		QuotePrice:   quote,
		FromStatus:   from,
		ToStatus:     to,
		Result:       result,
		CreatedAt:    s.now(),
	}
}

func commentOf(req *CommentRequest) string {
	if req == nil {
		return ""
	}
	return utils.SanitizeString(req.Content)
}
