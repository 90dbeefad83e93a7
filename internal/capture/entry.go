// Package capture collects outbound requests from a browser's DevTools performance
// log and picks out the one a capture window is waiting for.
package capture

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// MethodRequestWillBeSent is the DevTools event emitted before a request leaves
// the browser. It is the only event Decode accepts.
const MethodRequestWillBeSent = "Network.requestWillBeSent"

// Entry is one raw performance-log entry. Message holds the DevTools event wrapped
// the way chromedriver reports it: {"message":{"method":...,"params":{...}},"webview":...}.
type Entry struct {
	Level     string
	Message   string
	Timestamp time.Time
}

// Request is a decoded outbound HTTP request.
type Request struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	ObservedAt time.Time         `json:"observed_at"`
}

type envelope struct {
	Message struct {
		Method string `json:"method"`
		Params any    `json:"params"`
	} `json:"message"`
	Webview string `json:"webview,omitempty"`
}

// NewEntry wraps a DevTools event in the performance-log envelope.
func NewEntry(method string, params any, webview string, at time.Time) (Entry, error) {
	var env envelope
	env.Message.Method = method
	env.Message.Params = params
	env.Webview = webview

	data, err := json.Marshal(env)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s entry: %w", method, err)
	}
	return Entry{Level: "INFO", Message: string(data), Timestamp: at}, nil
}

// RequestParams builds the params object of a requestWillBeSent event.
func RequestParams(requestID, url, method string, headers map[string]string) map[string]any {
	hdrs := make(map[string]any, len(headers))
	for k, v := range headers {
		hdrs[k] = v
	}
	return map[string]any{
		"requestId": requestID,
		"request": map[string]any{
			"url":     url,
			"method":  method,
			"headers": hdrs,
		},
	}
}

// Decode turns a raw entry into a Request. It reports false, and never panics, for
// malformed JSON, events other than requestWillBeSent, and events without a
// non-empty params.request object.
func Decode(e Entry) (*Request, bool) {
	if e.Message == "" || !gjson.Valid(e.Message) {
		return nil, false
	}

	msg := gjson.Get(e.Message, "message")
	if msg.Get("method").String() != MethodRequestWillBeSent {
		return nil, false
	}

	req := msg.Get("params.request")
	if !req.IsObject() || len(req.Map()) == 0 {
		return nil, false
	}

	headers := make(map[string]string)
	req.Get("headers").ForEach(func(k, v gjson.Result) bool {
		headers[k.String()] = v.String()
		return true
	})

	observed := e.Timestamp
	if observed.IsZero() {
		observed = time.Now()
	}

	return &Request{
		URL:        req.Get("url").String(),
		Method:     req.Get("method").String(),
		Headers:    headers,
		ObservedAt: observed,
	}, true
}
