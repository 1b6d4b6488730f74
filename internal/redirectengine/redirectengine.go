// Package redirectengine decides whether to follow a 3xx response and
// builds the next hop's task.
package redirectengine

import (
	"net/url"

	"github.com/asyncreq/engine/internal/httpmodel"
)

// followableStatuses are the 3xx codes this engine ever follows.
var followableStatuses = map[int]bool{
	301: true, 302: true, 303: true, 307: true, 308: true,
}

// Followable reports whether status is one the engine will follow,
// given maxRedirects (0 disables following entirely).
func Followable(status int, maxRedirects int) bool {
	if maxRedirects == 0 {
		return false
	}
	return followableStatuses[status]
}

// Decision is the outcome of evaluating one response against a task's
// redirect chain.
type Decision struct {
	// Follow is true when the caller should push NextTask back onto the
	// queue instead of delivering resp to the callback.
	Follow   bool
	NextTask *httpmodel.RequestTask
}

// Evaluate inspects resp against task and the resolved maxRedirects
// (the caller resolves task.Request.MaxRedirects against the engine
// default before calling in). It returns Decision{Follow: false} when
// the response isn't a followable redirect at all (not an error; the
// caller should deliver resp normally). It returns a *httpmodel.Error
// for the two violation cases: too-many and recursive.
func Evaluate(task *httpmodel.RequestTask, resp *httpmodel.Response, maxRedirects int) (Decision, *httpmodel.Error) {
	if !Followable(resp.Status, maxRedirects) {
		return Decision{}, nil
	}
	location := resp.Headers.Get("location")
	if location == "" {
		return Decision{}, nil
	}

	nextURL, err := resolveLocation(resp.URL, location)
	if err != nil {
		return Decision{}, nil
	}

	if len(task.RedirectChain) >= maxRedirects {
		return Decision{}, httpmodel.NewTooManyRedirectsError(
			task.CorrelationID, task.RedirectChain, nextURL, task.CallbackArgs)
	}

	visited := make(map[string]bool, len(task.RedirectChain)+1)
	for _, u := range task.RedirectChain {
		visited[u] = true
	}
	visited[resp.URL] = true
	if visited[nextURL] {
		return Decision{}, httpmodel.NewRecursiveRedirectError(
			task.CorrelationID, task.RedirectChain, nextURL, task.CallbackArgs)
	}

	method, keepBody := rewriteMethod(resp.Status, task.Request.Method)
	nextReq := task.Request.WithRedirectHop(method, nextURL, keepBody)
	nextTask := task.RedirectHop(nextReq, resp.URL)

	return Decision{Follow: true, NextTask: nextTask}, nil
}

// rewriteMethod applies the method rewrite table: GET stays GET; 301, 302
// and 303 turn any other method into GET and drop the body; every other
// status preserves the method and body.
func rewriteMethod(status int, method httpmodel.Method) (httpmodel.Method, bool) {
	if method == httpmodel.MethodGET {
		return method, true
	}
	switch status {
	case 301, 302, 303:
		return httpmodel.MethodGET, false
	case 307, 308:
		return method, true
	default:
		return method, true
	}
}

func resolveLocation(baseURL, location string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}
