package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
)

// CallbackRequest 支付回调原始请求
type CallbackRequest struct {
	Headers http.Header
	Body    []byte
	Form    url.Values
}

// CallbackResult 验签后的回调内容
type CallbackResult struct {
	OrderNo       string
	TransactionID string
	Success       bool
	Amount        int64 // 单位: 分
	TradeState    string
}

// Ack 返回给支付渠道的应答，格式由渠道规定
type Ack struct {
	Status      int
	ContentType string
	Body        []byte
}

// PaymentParams 客户端拉起支付所需参数
type PaymentParams map[string]string

// PaymentProvider 支付渠道
type PaymentProvider interface {
	Name() string
	CreatePayment(ctx context.Context, order *model.OrderModel) (PaymentParams, error)
	VerifyCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, error)
	SuccessAck() Ack
	FailAck(reason string) Ack
}

// PaymentRegistry 按名称查找支付渠道
type PaymentRegistry struct {
	providers map[string]PaymentProvider
}

// NewPaymentRegistry 根据配置创建已启用的支付渠道
func NewPaymentRegistry(cfg config.PaymentConfig) (*PaymentRegistry, error) {
	r := &PaymentRegistry{providers: make(map[string]PaymentProvider)}
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch strings.ToLower(name) {
		case WechatName:
			r.Register(NewWechatProvider(pc))
		case AlipayName:
			r.Register(NewAlipayProvider(pc))
		default:
			return nil, fmt.Errorf("unsupported payment provider %q", name)
		}
	}
	return r, nil
}

// Register 注册支付渠道
func (r *PaymentRegistry) Register(p PaymentProvider) {
	r.providers[p.Name()] = p
}

// Get 查找支付渠道
func (r *PaymentRegistry) Get(name string) (PaymentProvider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names 已注册渠道名称
func (r *PaymentRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
