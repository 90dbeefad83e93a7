package capture

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestEntry(t *testing.T, url, method string, headers map[string]string) Entry {
	t.Helper()
	e, err := NewEntry(MethodRequestWillBeSent, RequestParams("1000.1", url, method, headers), "page-1", time.Now())
	require.NoError(t, err)
	return e
}

func TestDecodeRequestWillBeSent(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e, err := NewEntry(MethodRequestWillBeSent, RequestParams("7", "https://outlook.office.com/owa/service.svc", "POST", map[string]string{
		"Authorization": "Bearer abc",
		"X-Client":      "owa",
	}), "", at)
	require.NoError(t, err)

	req, ok := Decode(e)
	require.True(t, ok)
	assert.Equal(t, "https://outlook.office.com/owa/service.svc", req.URL)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Client": "owa"}, req.Headers)
	assert.Equal(t, at, req.ObservedAt)
}

func TestDecodeChromedriverShape(t *testing.T) {
	raw := `{"message":{"method":"Network.requestWillBeSent","params":{"requestId":"1","request":{"url":"https://a.example/x","method":"GET","headers":{"Accept":"*/*","X-Num":42}}}},"webview":"ABC"}`
	req, ok := Decode(Entry{Message: raw})
	require.True(t, ok)
	assert.Equal(t, "https://a.example/x", req.URL)
	assert.Equal(t, "42", req.Headers["X-Num"])
	assert.False(t, req.ObservedAt.IsZero())
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"not json":         `{"message":`,
		"other event":      `{"message":{"method":"Network.responseReceived","params":{"request":{"url":"x"}}}}`,
		"no params":        `{"message":{"method":"Network.requestWillBeSent"}}`,
		"no request":       `{"message":{"method":"Network.requestWillBeSent","params":{"requestId":"1"}}}`,
		"empty request":    `{"message":{"method":"Network.requestWillBeSent","params":{"request":{}}}}`,
		"request not obj":  `{"message":{"method":"Network.requestWillBeSent","params":{"request":"https://x"}}}`,
		"message is array": `{"message":[1,2,3]}`,
		"bare event":       `{"method":"Network.requestWillBeSent","params":{"request":{"url":"x"}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			req, ok := Decode(Entry{Message: raw})
			assert.False(t, ok)
			assert.Nil(t, req)
		})
	}
}

func TestDecodeNeverHaltsScan(t *testing.T) {
	var entries []Entry
	want := 0
	for i := 0; i < 40; i++ {
		switch i % 4 {
		case 0:
			entries = append(entries, requestEntry(t, fmt.Sprintf("https://h/%d", i), "GET", nil))
			want++
		case 1:
			entries = append(entries, Entry{Message: "garbage " + fmt.Sprint(i)})
		case 2:
			e, err := NewEntry("Page.loadEventFired", map[string]any{"timestamp": i}, "", time.Now())
			require.NoError(t, err)
			entries = append(entries, e)
		case 3:
			entries = append(entries, Entry{Message: `{"message":{"method":"Network.requestWillBeSent","params":{}}}`})
		}
	}

	got := 0
	for _, e := range entries {
		if _, ok := Decode(e); ok {
			got++
		}
	}
	assert.Equal(t, want, got)
}
