package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/utils"
)

// WechatName 微信支付渠道名
const WechatName = "wechat"

// 回调签名头
const (
	WechatSignatureHeader = "Wechatpay-Signature"
	WechatTimestampHeader = "Wechatpay-Timestamp"
	WechatNonceHeader     = "Wechatpay-Nonce"
)

// WechatProvider 微信支付
// 签名为简化方案: 下单参数与回调均使用商户密钥做 HMAC-SHA256，
// 回调签名串沿用 v3 的 时间戳\n随机串\n报文\n 格式。
// 未实现 v3 的平台证书 RSA 验签与 AES-GCM 资源解密，
// 回调报文按明文 JSON 解析，接入真实商户号前需替换
type WechatProvider struct {
	cfg config.PaymentProviderConfig
}

// NewWechatProvider 创建微信支付渠道
func NewWechatProvider(cfg config.PaymentProviderConfig) *WechatProvider {
	return &WechatProvider{cfg: cfg}
}

// Name 渠道名
func (p *WechatProvider) Name() string {
	return WechatName
}

// CreatePayment 生成客户端下单参数
func (p *WechatProvider) CreatePayment(ctx context.Context, order *model.OrderModel) (PaymentParams, error) {
	params := PaymentParams{
		"appid":        p.cfg.AppID,
		"mchid":        p.cfg.MchID,
		"out_trade_no": order.OrderNo,
		"total":        strconv.FormatInt(order.Price, 10),
		"notify_url":   p.cfg.NotifyURL,
		"nonce_str":    uuid.New().String(),
		"timestamp":    strconv.FormatInt(time.Now().Unix(), 10),
	}
	params["sign"] = utils.SignHMAC(utils.CanonicalString(params), p.cfg.Secret)
	return params, nil
}

type wechatNotify struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	Amount        struct {
		Total int64 `json:"total"`
	} `json:"amount"`
}

// WechatSignPayload 回调签名串: 时间戳\n随机串\n报文\n
func WechatSignPayload(timestamp, nonce string, body []byte) string {
	return fmt.Sprintf("%s\n%s\n%s\n", timestamp, nonce, body)
}

// VerifyCallback 以商户密钥校验 HMAC 签名并解析明文回调
func (p *WechatProvider) VerifyCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, error) {
	ts := req.Headers.Get(WechatTimestampHeader)
	nonce := req.Headers.Get(WechatNonceHeader)
	sig := req.Headers.Get(WechatSignatureHeader)
	if ts == "" || nonce == "" || sig == "" {
		return nil, fmt.Errorf("missing signature headers")
	}
	if !utils.VerifyHMAC(WechatSignPayload(ts, nonce, req.Body), p.cfg.Secret, sig) {
		return nil, fmt.Errorf("signature mismatch")
	}

	var n wechatNotify
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return nil, fmt.Errorf("invalid notify body: %w", err)
	}
	if n.OutTradeNo == "" {
		return nil, fmt.Errorf("missing out_trade_no")
	}

	return &CallbackResult{
		OrderNo:       n.OutTradeNo,
		TransactionID: n.TransactionID,
		Success:       n.TradeState == "SUCCESS",
		Amount:        n.Amount.Total,
		TradeState:    n.TradeState,
	}, nil
}

// SuccessAck 微信要求的成功应答
func (p *WechatProvider) SuccessAck() Ack {
	return Ack{
		Status:      http.StatusOK,
		ContentType: "application/json; charset=utf-8",
		Body:        []byte(`{"code":"SUCCESS","message":"成功"}`),
	}
}

// FailAck 微信要求的失败应答
func (p *WechatProvider) FailAck(reason string) Ack {
	body, _ := json.Marshal(map[string]string{"code": "FAIL", "message": reason})
	return Ack{
		Status:      http.StatusBadRequest,
		ContentType: "application/json; charset=utf-8",
		Body:        body,
	}
}
