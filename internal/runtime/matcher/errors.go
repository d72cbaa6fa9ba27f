package matcher

import "errors"

var (
	errNoForwarder = errors.New("matcher: forwardTo disposition requires a forwarder")
	errNoHandlerFn = errors.New("matcher: handler-fn default policy requires a HandlerFn")
)
