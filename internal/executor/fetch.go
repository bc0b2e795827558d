package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"goq/internal/operation"
)

// runFetch issues a bounded HTTP GET. Non-2xx responses are normal results
// carrying the status so the model can react; only transport-level failures
// become network errors.
func (e *Executor) runFetch(ctx context.Context, action *operation.Action) operation.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, action.URL, nil)
	if err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrNetwork, err, "cannot build request for %s", action.URL)
		return res
	}
	req.Header.Set("User-Agent", "goq/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrNetwork, err, "fetch %s failed", action.URL)
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.FetchMaxSize))
	if err != nil {
		res := operation.ExecutionResult{Success: false, Output: err.Error()}
		res.Err = operation.WrapError(operation.ErrNetwork, err, "reading response from %s", action.URL)
		return res
	}

	content := string(body)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml") {
		if md, err := htmlToMarkdown(content); err == nil && md != "" {
			content = md
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return operation.ExecutionResult{
			Success: false,
			Output:  fmt.Sprintf("HTTP %d %s\n%s", resp.StatusCode, http.StatusText(resp.StatusCode), content),
		}
	}

	return operation.Ok(content)
}
