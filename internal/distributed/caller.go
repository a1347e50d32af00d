package distributed

import (
	"context"
)

// Response pairs the result of one call with the tag it was issued with.
type Response[I, R any] struct {
	Info   I
	Addr   string
	Result R
	Err    error
}

// CallFunc performs one request against the worker at addr.
type CallFunc[Req, Resp any] func(ctx context.Context, addr string, req Req) (Resp, error)

// Caller issues asynchronous calls and hands back their responses in
// completion order. Every issued call must be drained with Next or Drain.
type Caller[I, Req, Resp any] struct {
	ctx     context.Context
	call    CallFunc[Req, Resp]
	results chan Response[I, Resp]
	pending int
}

// NewCaller returns a caller that runs call for every request.
func NewCaller[I, Req, Resp any](ctx context.Context, call func(ctx context.Context, addr string, req Req) (Resp, error)) *Caller[I, Req, Resp] {
	return &Caller[I, Req, Resp]{
		ctx:     ctx,
		call:    call,
		results: make(chan Response[I, Resp]),
	}
}

// Call issues req to addr in the background. info is returned with the
// response.
func (c *Caller[I, Req, Resp]) Call(addr string, info I, req Req) {
	c.pending++
	go func() {
		res, err := c.call(c.ctx, addr, req)
		c.results <- Response[I, Resp]{Info: info, Addr: addr, Result: res, Err: err}
	}()
}

// Empty reports whether every issued call has been drained.
func (c *Caller[I, Req, Resp]) Empty() bool {
	return c.pending == 0
}

// Next blocks for the next completed call. It must not be called when Empty.
func (c *Caller[I, Req, Resp]) Next() Response[I, Resp] {
	r := <-c.results
	c.pending--
	return r
}

// Drain waits for every pending call and returns the responses in
// completion order.
func (c *Caller[I, Req, Resp]) Drain() []Response[I, Resp] {
	out := make([]Response[I, Resp], 0, c.pending)
	for !c.Empty() {
		out = append(out, c.Next())
	}
	return out
}
