package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/utils"
)

// AlipayName 支付宝渠道名
const AlipayName = "alipay"

// AlipayProvider 支付宝
type AlipayProvider struct {
	cfg config.PaymentProviderConfig
}

// NewAlipayProvider 创建支付宝渠道
func NewAlipayProvider(cfg config.PaymentProviderConfig) *AlipayProvider {
	return &AlipayProvider{cfg: cfg}
}

// Name 渠道名
func (p *AlipayProvider) Name() string {
	return AlipayName
}

// CreatePayment 生成客户端下单参数，金额单位为元
func (p *AlipayProvider) CreatePayment(ctx context.Context, order *model.OrderModel) (PaymentParams, error) {
	params := PaymentParams{
		"app_id":       p.cfg.AppID,
		"method":       "alipay.trade.app.pay",
		"out_trade_no": order.OrderNo,
		"total_amount": FormatYuan(order.Price),
		"notify_url":   p.cfg.NotifyURL,
		"timestamp":    time.Now().Format("2006-01-02 15:04:05"),
		"sign_type":    "HMAC-SHA256",
	}
	params["sign"] = utils.SignHMAC(utils.CanonicalString(params, "sign", "sign_type"), p.cfg.Secret)
	return params, nil
}

// VerifyCallback 校验表单签名并解析回调
func (p *AlipayProvider) VerifyCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, error) {
	if req.Form == nil {
		return nil, fmt.Errorf("empty notify form")
	}
	params := make(map[string]string, len(req.Form))
	for k := range req.Form {
		params[k] = req.Form.Get(k)
	}

	sig := params["sign"]
	if sig == "" {
		return nil, fmt.Errorf("missing sign")
	}
	if !utils.VerifyHMAC(utils.CanonicalString(params, "sign", "sign_type"), p.cfg.Secret, sig) {
		return nil, fmt.Errorf("signature mismatch")
	}
	if params["out_trade_no"] == "" {
		return nil, fmt.Errorf("missing out_trade_no")
	}

	amount, err := ParseYuan(params["total_amount"])
	if err != nil {
		return nil, err
	}

	state := params["trade_status"]
	return &CallbackResult{
		OrderNo:       params["out_trade_no"],
		TransactionID: params["trade_no"],
		Success:       state == "TRADE_SUCCESS" || state == "TRADE_FINISHED",
		Amount:        amount,
		TradeState:    state,
	}, nil
}

// SuccessAck 支付宝要求返回纯文本 success
func (p *AlipayProvider) SuccessAck() Ack {
	return Ack{Status: http.StatusOK, ContentType: "text/plain; charset=utf-8", Body: []byte("success")}
}

// FailAck 支付宝要求返回纯文本 fail
func (p *AlipayProvider) FailAck(string) Ack {
	return Ack{Status: http.StatusOK, ContentType: "text/plain; charset=utf-8", Body: []byte("fail")}
}

// FormatYuan 分转元字符串
func FormatYuan(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// ParseYuan 元字符串转分
func ParseYuan(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return int64(math.Round(f * 100)), nil
}
