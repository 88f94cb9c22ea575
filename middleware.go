package breeze

import "errors"

// Handler produces a Response (or leaves the Ctx's buffered response as
// set, returning an error on failure) from a request.
type Handler func(c *Ctx) error

// Middleware wraps next, which is the composition of the remaining
// middleware and the endpoint. A middleware may mutate the request
// before calling next, mutate the response after next returns,
// short-circuit by not calling next, translate errors, or install
// extensions.
type Middleware func(next Handler) Handler

// chain composes middleware in declaration order around terminal,
// so that invocation order equals insertion order and unwinding is
// strict LIFO.
func chain(mws []Middleware, terminal Handler) Handler {
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Before lifts a plain pre-processing function into a Middleware: it
// runs f(c) and then calls next.
func Before(f func(c *Ctx) error) Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			if err := f(c); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// After lifts a plain post-processing function into a Middleware: it
// calls next, then runs f(c) on the resulting response/error.
func After(f func(c *Ctx, err error)) Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			err := next(c)
			f(c, err)
			return err
		}
	}
}

// ErrorHandlerMiddleware runs next; if the resulting error carries the
// given Kind, it is transformed into a successful response via
// onMatch. Any other error propagates unchanged.
func ErrorHandlerMiddleware(k Kind, onMatch func(c *Ctx, err *Error) error) Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			err := next(c)
			if err == nil {
				return nil
			}
			var appErr *Error
			if errors.As(err, &appErr) && appErr.Kind == k {
				return onMatch(c, appErr)
			}
			return err
		}
	}
}
