package httpclient

import (
	"crypto/tls"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
)

// HclogAdapter adapts an hclog.Logger to be compatible with the resty log.Logger interface.
type HclogAdapter struct {
	logger hclog.Logger
}

// NewHclogAdapter creates a new adapter that will forward messages to a hclog.Logger.
func NewHclogAdapter(logger hclog.Logger) resty.Logger {
	return &HclogAdapter{logger: logger}
}

// Errorf logs a message at error level.
func (a *HclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Warnf logs a message at warning level.
func (a *HclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

// Debugf logs a message at debug level.
func (a *HclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// InitializeRestyClient initializes and configures a resty client based on the provided configuration.
func InitializeRestyClient(logger hclog.Logger, cfg *config.Config) *resty.Client {
	client := resty.New()
	if logger != nil {
		client.SetLogger(NewHclogAdapter(logger))
	}

	hc := cfg.HttpClient
	client.SetDebug(hc.Debug)
	if hc.RetryCount > 0 {
		client.SetRetryCount(hc.RetryCount)
	}
	if hc.RetryWaitTime > 0 {
		client.SetRetryWaitTime(hc.RetryWaitTime)
	}
	if hc.RetryMaxWaitTime > 0 {
		client.SetRetryMaxWaitTime(hc.RetryMaxWaitTime)
	}
	if hc.Timeout > 0 {
		client.SetTimeout(hc.Timeout)
	}
	if !hc.TlsClientConfig.Verify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return client
}
