// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geodata-platform/olp-sdk-go/internal/logging"
)

// NetHTTP is the default Http implementation, backed by net/http. One
// instance is meant to be shared process-wide rather than built per
// request.
type NetHTTP struct {
	client *http.Client

	nextID  uint64
	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
}

// NewNetHTTP builds a NetHTTP transport with the given per-request timeout
// ceiling; individual requests may still be cut short by Cancel.
func NewNetHTTP(timeout time.Duration) *NetHTTP {
	return &NetHTTP{
		client:  &http.Client{Timeout: timeout},
		cancels: make(map[uint64]context.CancelFunc),
	}
}

func (n *NetHTTP) Send(req *Request) (uint64, *Future) {
	id := atomic.AddUint64(&n.nextID, 1)
	future := newFuture()

	ctx, cancelFn := context.WithCancel(context.Background())
	n.mu.Lock()
	n.cancels[id] = cancelFn
	n.mu.Unlock()

	go func() {
		defer func() {
			n.mu.Lock()
			delete(n.cancels, id)
			n.mu.Unlock()
		}()

		var body io.Reader
		if len(req.Body) > 0 {
			body = bytes.NewReader(req.Body)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			future.complete(Result{Err: err})
			return
		}
		for _, h := range req.Headers {
			httpReq.Header.Add(h.Name, h.Value)
		}

		resp, err := n.client.Do(httpReq)
		if err != nil {
			logging.Debug().Uint64("request_id", id).Err(err).Msg("transport request failed")
			future.complete(Result{Err: err})
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			future.complete(Result{Err: err})
			return
		}

		var hdrs Headers
		for name, values := range resp.Header {
			for _, v := range values {
				hdrs = hdrs.Add(name, v)
			}
		}

		future.complete(Result{Response: &Response{
			Status:  resp.StatusCode,
			Headers: hdrs,
			Body:    respBody,
			Stats: NetworkStatistics{
				BytesUploaded:   int64(len(req.Body)),
				BytesDownloaded: int64(len(respBody)),
			},
		}})
	}()

	return id, future
}

func (n *NetHTTP) Cancel(requestID uint64) {
	n.mu.Lock()
	cancelFn, ok := n.cancels[requestID]
	n.mu.Unlock()
	if ok {
		cancelFn()
	}
}
