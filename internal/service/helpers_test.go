package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	creatorID = "creator-001"
	adminID   = "admin-001"
	buyerID   = "buyer-001"
)

var (
	admin   = service.AdminActor(adminID)
	creator = service.CustomerActor(creatorID)
	buyer   = service.CustomerActor(buyerID)
)

// setupRepos 创建 sqlite 内存存储
func setupRepos(t *testing.T) *repository.Repositories {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return repository.New(docstore.NewGormStore(db))
}

func newLogger() (logrus.FieldLogger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

func sweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Enabled:             true,
		Interval:            time.Minute,
		TaskTimeout:         30 * time.Minute,
		DispatchGrace:       2 * time.Minute,
		MaxDispatchAttempts: 3,
		BatchSize:           50,
		Concurrency:         4,
		LockTTL:             time.Minute,
	}
}

// seedReviewItem 直接写入指定状态的作品
func seedReviewItem(t *testing.T, repos *repository.Repositories, id string, status model.ReviewStatus, mutate func(*model.ReviewItemModel)) *model.ReviewItemModel {
	now := time.Now()
	item := &model.ReviewItemModel{
		ID:              id,
		CreatorID:       creatorID,
		Title:           "毕业季短片",
		RawMaterialURLs: []byte(`["https://cdn.example.com/raw/1.mp4"]`),
		ReviewStatus:    status,
		MaxModifyCount:  2,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, repos.Store().Insert(context.Background(), model.CollReviewItems, item))
	return item
}

// publishable 满足上架条件
func publishable(item *model.ReviewItemModel) {
	item.QuotePrice = 8000
	item.EstimatedDays = 3
	item.ResultVideoURL = "https://cdn.example.com/result/1.mp4"
	item.DeliveryCount = 1
}

// seedOrder 写入待支付订单
func seedOrder(t *testing.T, repos *repository.Repositories, id string, orderType model.OrderType, mutate func(*model.OrderModel)) *model.OrderModel {
	now := time.Now()
	order := &model.OrderModel{
		ID:            id,
		OrderNo:       "NO-" + id,
		UserID:        buyerID,
		VideoID:       "video-001",
		Type:          orderType,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		Price:         8000,
		Materials:     []byte(`["https://cdn.example.com/face.jpg"]`),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, repos.Store().Insert(context.Background(), model.CollOrders, order))
	return order
}

// paidProcessing 已支付处理中的订单
func paidProcessing(paidAgo time.Duration) func(*model.OrderModel) {
	return func(o *model.OrderModel) {
		paidAt := time.Now().Add(-paidAgo)
		o.Status = model.OrderStatusProcessing
		o.PaymentStatus = model.PaymentStatusPaid
		o.TransactionID = "txn-" + o.ID
		o.PaidAt = &paidAt
	}
}

// seedTask 写入处理任务
func seedTask(t *testing.T, repos *repository.Repositories, id, orderID string, source model.TaskSource, status model.TaskStatus, age time.Duration) *model.TaskModel {
	created := time.Now().Add(-age)
	task := &model.TaskModel{
		ID:        id,
		OrderID:   orderID,
		UserID:    buyerID,
		Source:    source,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repos.Store().Insert(context.Background(), model.CollTasks, task))
	return task
}

func getOrder(t *testing.T, repos *repository.Repositories, id string) *model.OrderModel {
	order, err := repos.Orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func getTask(t *testing.T, repos *repository.Repositories, id string) *model.TaskModel {
	task, err := repos.Tasks.FindByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func getItem(t *testing.T, repos *repository.Repositories, id string) *model.ReviewItemModel {
	item, err := repos.Reviews.FindItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

func orderLogs(t *testing.T, repos *repository.Repositories, orderID string) []model.OrderLogModel {
	logs, err := repos.Orders.Logs(context.Background(), orderID)
	require.NoError(t, err)
	return logs
}

func countLogs(logs []model.OrderLogModel, action string) int {
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

func countReviewLogs(logs []model.ReviewLogModel, result model.LogResult) int {
	n := 0
	for _, l := range logs {
		if l.Result == result {
			n++
		}
	}
	return n
}

// fakeJobProvider 可编排的外部处理服务
type fakeJobProvider struct {
	source model.TaskSource

	mu        sync.Mutex
	submitErr error
	submits   int
	statuses  map[string]*provider.JobStatus
	errs      map[string]error
	panics    map[string]bool
	queries   int

	// onSubmit 在外部任务创建后、回写前调用
	onSubmit func(order *model.OrderModel)
}

func newFakeJobProvider(source model.TaskSource) *fakeJobProvider {
	return &fakeJobProvider{
		source:   source,
		statuses: make(map[string]*provider.JobStatus),
		errs:     make(map[string]error),
		panics:   make(map[string]bool),
	}
}

func (p *fakeJobProvider) Source() model.TaskSource {
	return p.source
}

func (p *fakeJobProvider) Submit(ctx context.Context, order *model.OrderModel, materials []string) (string, error) {
	p.mu.Lock()
	if p.submitErr != nil {
		p.mu.Unlock()
		return "", p.submitErr
	}
	p.submits++
	id := fmt.Sprintf("%s-task-%s-%d", p.source, order.ID, p.submits)
	hook := p.onSubmit
	p.mu.Unlock()

	if hook != nil {
		hook(order)
	}
	return id, nil
}

func (p *fakeJobProvider) Status(ctx context.Context, taskID string) (*provider.JobStatus, error) {
	p.mu.Lock()
	p.queries++
	panicking := p.panics[taskID]
	err := p.errs[taskID]
	st, ok := p.statuses[taskID]
	p.mu.Unlock()

	if panicking {
		panic("provider exploded")
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.ErrExternalProviderUnavailable, "task %s unknown", taskID)
	}
	cp := *st
	return &cp, nil
}

func (p *fakeJobProvider) setStatus(taskID string, st model.TaskStatus, progress int, resultURL, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[taskID] = &provider.JobStatus{
		Status:    st,
		Raw:       string(st),
		Progress:  progress,
		ResultURL: resultURL,
		Error:     errMsg,
	}
}

func (p *fakeJobProvider) setError(taskID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[taskID] = err
}

func (p *fakeJobProvider) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

// fakePayment 测试用支付渠道，回调体为 JSON
type fakePayment struct {
	createErr error
}

type fakeNotify struct {
	OrderNo       string `json:"order_no"`
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
	Amount        int64  `json:"amount"`
}

func (p *fakePayment) Name() string { return "fakepay" }

func (p *fakePayment) CreatePayment(ctx context.Context, order *model.OrderModel) (provider.PaymentParams, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return provider.PaymentParams{"order_no": order.OrderNo, "amount": fmt.Sprint(order.Price)}, nil
}

func (p *fakePayment) VerifyCallback(ctx context.Context, req *provider.CallbackRequest) (*provider.CallbackResult, error) {
	if req.Headers.Get("X-Signature") != "valid" {
		return nil, errors.New("signature mismatch")
	}
	var n fakeNotify
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return nil, err
	}
	state := "FAIL"
	if n.Success {
		state = "SUCCESS"
	}
	return &provider.CallbackResult{
		OrderNo:       n.OrderNo,
		TransactionID: n.TransactionID,
		Success:       n.Success,
		Amount:        n.Amount,
		TradeState:    state,
	}, nil
}

func (p *fakePayment) SuccessAck() provider.Ack {
	return provider.Ack{Status: http.StatusOK, ContentType: "text/plain", Body: []byte("OK")}
}

func (p *fakePayment) FailAck(reason string) provider.Ack {
	return provider.Ack{Status: http.StatusBadRequest, ContentType: "text/plain", Body: []byte("FAIL")}
}

func callback(t *testing.T, orderNo string, success bool, amount int64) *provider.CallbackRequest {
	body, err := json.Marshal(fakeNotify{OrderNo: orderNo, TransactionID: "txn-" + orderNo, Success: success, Amount: amount})
	require.NoError(t, err)
	h := http.Header{}
	h.Set("X-Signature", "valid")
	return &provider.CallbackRequest{Headers: h, Body: body}
}

func newRegistry(p provider.PaymentProvider) *provider.PaymentRegistry {
	r, _ := provider.NewPaymentRegistry(config.PaymentConfig{})
	r.Register(p)
	return r
}

// fakeAuthz 内存归属关系
type fakeAuthz struct {
	mu        sync.Mutex
	relations map[string]bool
}

func newFakeAuthz() *fakeAuthz {
	return &fakeAuthz{relations: make(map[string]bool)}
}

func (a *fakeAuthz) key(userID, relation, objectType, objectID string) string {
	return userID + "|" + relation + "|" + objectType + ":" + objectID
}

func (a *fakeAuthz) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.relations[a.key(userID, relation, objectType, objectID)], nil
}

func (a *fakeAuthz) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.relations[a.key(userID, relation, objectType, objectID)] = true
	return nil
}
