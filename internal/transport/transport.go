// Package transport performs single-shot streaming uploads guarded by a
// stall watchdog and a hard timeout.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultChunkSize = 16 * 1024
	maxErrorBody     = 4 * 1024
)

type Progress struct {
	Sent  int64
	Total int64
}

type Request struct {
	URL    string
	Method string
	Header http.Header

	Body        io.Reader
	Size        int64
	ContentType string

	// Timeout bounds the whole upload. StallTimeout bounds the gap between
	// two progress events while the body is being sent.
	Timeout      time.Duration
	StallTimeout time.Duration

	OnProgress func(Progress)
}

type Uploader struct {
	client    *http.Client
	chunkSize int
}

// New returns an Uploader. Timeouts are enforced per request, so client
// should not carry its own Timeout.
func New(client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{}
	}

	return &Uploader{
		client:    client,
		chunkSize: defaultChunkSize,
	}
}

// Upload runs req to completion.
func (u *Uploader) Upload(ctx context.Context, req Request) error {
	return u.Start(ctx, req).Wait()
}

// Start begins req in the background. The returned handle can abort it.
func (u *Uploader) Start(ctx context.Context, req Request) *Upload {
	ctx, cancel := context.WithCancelCause(ctx)

	up := &Upload{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		up.err = u.run(ctx, cancel, req)
		cancel(nil)
		close(up.done)
	}()

	return up
}

// Upload is an in-flight upload.
type Upload struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
}

func (up *Upload) Abort() {
	up.cancel(ErrAborted)
}

func (up *Upload) Done() <-chan struct{} {
	return up.done
}

func (up *Upload) Wait() error {
	<-up.done
	return up.err
}

func (u *Uploader) run(ctx context.Context, cancel context.CancelCauseFunc, req Request) error {
	// mu orders body reads against the end of run: once finished is set no
	// read touches the stall timer or reports progress.
	var (
		mu       sync.Mutex
		finished bool
	)

	if req.Timeout > 0 {
		hard := time.AfterFunc(req.Timeout, func() { cancel(ErrTimeout) })
		defer hard.Stop()
	}

	var stall *time.Timer
	if req.StallTimeout > 0 {
		stall = time.AfterFunc(req.StallTimeout, func() { cancel(ErrStall) })
		defer stall.Stop()
	}

	// Declared after the timers so it runs before they are stopped.
	defer func() {
		mu.Lock()
		finished = true
		mu.Unlock()
	}()

	body := &progressReader{
		r:     req.Body,
		total: req.Size,
		chunk: u.chunkSize,
		onRead: func(sent int64, complete bool) {
			mu.Lock()
			defer mu.Unlock()

			if finished {
				return
			}
			if stall != nil {
				if complete {
					// The rest is waiting on the server, which the hard
					// timeout covers.
					stall.Stop()
				} else {
					stall.Reset(req.StallTimeout)
				}
			}
			if req.OnProgress != nil {
				req.OnProgress(Progress{Sent: sent, Total: req.Size})
			}
		},
	}

	method := req.Method
	if method == "" {
		method = http.MethodPut
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	if req.Size > 0 {
		httpReq.ContentLength = req.Size
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	// Presigners list Host among the signed headers; net/http reads it
	// from the request instead.
	if host := req.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && context.Cause(ctx) != nil {
		return classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(msg))),
		}
	}

	return nil
}

func classify(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrStall):
		return &Error{Kind: KindStall, Err: ErrStall}
	case errors.Is(cause, ErrTimeout):
		return &Error{Kind: KindTimeout, Err: ErrTimeout}
	case errors.Is(cause, ErrAborted):
		return &Error{Kind: KindAborted, Err: ErrAborted}
	case errors.Is(cause, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: cause}
	case errors.Is(cause, context.Canceled):
		return &Error{Kind: KindAborted, Err: cause}
	}

	return &Error{Kind: KindNetwork, Err: err}
}

type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	chunk  int
	onRead func(sent int64, complete bool)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.r == nil {
		return 0, io.EOF
	}
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}

	n, err := p.r.Read(b)
	p.sent += int64(n)

	complete := err == io.EOF || (p.total > 0 && p.sent >= p.total)
	if n > 0 || complete {
		p.onRead(p.sent, complete)
	}

	return n, err
}
