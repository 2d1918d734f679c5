package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

// Client is the HTTP implementation of the Authority contract.
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

// NewClient creates an authority client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, log: log}
}

type pushRequest struct {
	Records []Record `json:"records"`
}

type pushResponse struct {
	Results []Result `json:"results"`
}

// Push uploads one batch of unsynced records. Transport errors and non-2xx
// responses are reported as recoverable sync failures.
func (c *Client) Push(ctx context.Context, records []Record) ([]Result, error) {
	var out pushResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(pushRequest{Records: records}).
		SetResult(&out).
		Post("/sync/records")
	if err != nil {
		return nil, apperror.SyncFailed(fmt.Errorf("push request failed: %w", err))
	}
	if resp.IsError() {
		return nil, apperror.SyncFailed(fmt.Errorf("remote authority returned %s", resp.Status()))
	}

	c.log.Debug("pushed records", "count", len(records))
	return out.Results, nil
}
