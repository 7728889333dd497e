package lark

import (
	"context"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 15 * time.Second

// Config holds the app credentials and the approval definition that
// escalations are filed under.
type Config struct {
	AppID           string
	AppSecret       string
	ApprovalCode    string
	InitiatorOpenID string
	BaseURL         string // empty for the default open platform domain
	RequestTimeout  time.Duration
}

// SDKClient is the shared handle the approval, messenger and workflow
// adapters call through.
type SDKClient struct {
	client          *lark.Client
	approvalCode    string
	initiatorOpenID string
}

func NewSDKClient(cfg Config, logger *zap.Logger) *SDKClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	opts := []lark.ClientOptionFunc{
		lark.WithEnableTokenCache(true),
		lark.WithReqTimeout(timeout),
		lark.WithLogLevel(larkcore.LogLevelWarn),
		lark.WithLogger(sdkLogger{logger.Named("lark-sdk")}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}

	return &SDKClient{
		client:          lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		approvalCode:    cfg.ApprovalCode,
		initiatorOpenID: cfg.InitiatorOpenID,
	}
}

// sdkLogger routes the SDK's own log lines into zap.
type sdkLogger struct {
	l *zap.Logger
}

func (s sdkLogger) Debug(_ context.Context, args ...interface{}) { s.l.Debug(fmt.Sprint(args...)) }
func (s sdkLogger) Info(_ context.Context, args ...interface{})  { s.l.Info(fmt.Sprint(args...)) }
func (s sdkLogger) Warn(_ context.Context, args ...interface{})  { s.l.Warn(fmt.Sprint(args...)) }
func (s sdkLogger) Error(_ context.Context, args ...interface{}) { s.l.Error(fmt.Sprint(args...)) }
