package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"runtime/debug"
	"time"

	logx "rotabot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// UsageError is shown to the caller verbatim.
type UsageError struct{ Msg string }

func (e *UsageError) Error() string { return e.Msg }

func Usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs the outcome and replies to the caller on failure.
// Usage errors are echoed; anything else gets a generic line with the
// request id so it can be found in the logs.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			var ue *UsageError
			switch {
			case err == nil:
				if d >= 750*time.Millisecond {
					logger.Info("request ok", fields...)
				} else {
					logger.Debug("request ok", fields...)
				}
			case errors.As(err, &ue):
				logger.Debug("request rejected", append(fields, logx.String("reason", ue.Msg))...)
				_ = req.Reply(context.WithoutCancel(ctx), "⚠️ "+html.EscapeString(ue.Msg))
			default:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
				msg := "⚠️ Something went wrong"
				if errors.Is(err, context.DeadlineExceeded) {
					msg = "⏱️ That took too long"
				}
				_ = req.Reply(context.WithoutCancel(ctx), fmt.Sprintf("%s <i>(ref %s)</i>", msg, req.ReqID))
			}
			return err
		}
	}
}
