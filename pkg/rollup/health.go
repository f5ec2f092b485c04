package rollup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var (
	healthClient     *http.Client
	healthClientOnce sync.Once
)

// sharedHealthClient keeps one pooled transport for all endpoint checks
func sharedHealthClient() *http.Client {
	healthClientOnce.Do(func() {
		healthClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return healthClient
}

type healthRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type healthResponse struct {
	Result interface{}      `json:"result"`
	Error  *json.RawMessage `json:"error"`
}

// EndpointCheck is the result of one getHealth call
type EndpointCheck struct {
	URL     string        `json:"url"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

func checkEndpoint(ctx context.Context, url string, timeout time.Duration) EndpointCheck {
	start := time.Now()
	fail := func(err string) EndpointCheck {
		return EndpointCheck{URL: url, Latency: time.Since(start), Error: err}
	}

	body, _ := json.Marshal(healthRequest{Jsonrpc: "2.0", ID: 1, Method: "getHealth", Params: []interface{}{}})
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fail(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHealthClient().Do(req)
	if err != nil {
		return fail(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Sprintf("status code: %d", resp.StatusCode))
	}
	var result healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(err.Error())
	}
	if result.Error != nil {
		return fail(fmt.Sprintf("rpc error: %s", string(*result.Error)))
	}
	return EndpointCheck{URL: url, OK: true, Latency: time.Since(start)}
}

// CheckEndpoints queries every endpoint concurrently. Results keep the order
// of urls.
func CheckEndpoints(ctx context.Context, urls []string, timeout time.Duration) []EndpointCheck {
	results := make([]EndpointCheck, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = checkEndpoint(ctx, url, timeout)
		}(i, url)
	}
	wg.Wait()
	return results
}
