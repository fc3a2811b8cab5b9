package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"remindbot/internal/apperr"
	"remindbot/internal/metrics"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
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
					reqLogger(log, req).Error("panic recovered",
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			logger := reqLogger(log, req)
			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWReplyErrors answers the requester when the handler fails. Validation,
// permission and not-found errors are shown verbatim; anything else gets a
// generic apology. The error is still returned for logging.
func MWReplyErrors(ad kit.Adapter, log logx.Logger, m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err == nil {
				return nil
			}
			text := "Something went wrong. Please try again later."
			if apperr.IsUserFacing(err) {
				text = "❌ " + userMessage(err)
				m.Rejected(rejectReason(err))
			}
			msg := tgui.New().Line(text).Build()
			// The request ctx may already be past its deadline.
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, serr := msg.Send(sctx, ad, req.Chat); serr != nil {
				reqLogger(log, req).Warn("error reply failed", logx.Err(serr))
			}
			return err
		}
	}
}

func reqLogger(log logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return log
}

// userMessage strips wrapping added on the way up.
func userMessage(err error) string {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Msg
	case errors.Is(err, apperr.ErrPermissionDenied):
		return capitalize(apperr.ErrPermissionDenied.Error()) + "."
	case errors.Is(err, apperr.ErrNotFound):
		return capitalize(apperr.ErrNotFound.Error()) + "."
	}
	return err.Error()
}

func rejectReason(err error) string {
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	if errors.Is(err, apperr.ErrPermissionDenied) {
		return "permission_denied"
	}
	return "not_found"
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
