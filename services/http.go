package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/siderolabs/go-retry/retry"
)

// Readiness bounds how long ConfigureMaster waits for a service to come up.
type Readiness struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (r Readiness) orDefault() Readiness {
	if r.Timeout <= 0 {
		r.Timeout = 3 * time.Minute
	}
	if r.Interval <= 0 {
		r.Interval = 5 * time.Second
	}
	return r
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(ctx context.Context, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	if into == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// waitUntil polls check until it returns nil. check reports "not ready yet" through
// retry.ExpectedError; any other error aborts the wait.
func waitUntil(ctx context.Context, r Readiness, what string, check func(ctx context.Context) error) error {
	r = r.orDefault()
	err := retry.Constant(r.Timeout, retry.WithUnits(r.Interval)).RetryWithContext(ctx, check)
	if err != nil {
		return fmt.Errorf("%s did not become ready within %s: %w", what, r.Timeout, err)
	}
	return nil
}
