package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// BatchPath is appended to the delegate base URL.
const BatchPath = "/compatibility-batch"

type batchRequest struct {
	UserProfile       Profile   `json:"userProfile"`
	CandidateProfiles []Profile `json:"candidateProfiles"`
}

// Remote calls the external compatibility delegate. It applies no timeout
// of its own; Fallback wraps it with one.
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemote creates a delegate client. A nil client uses http.DefaultClient.
func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{baseURL: baseURL, httpClient: client}
}

// Score posts one batch and expects a result for every candidate.
func (r *Remote) Score(ctx context.Context, user Profile, candidates []Profile) ([]Result, error) {
	body, err := json.Marshal(batchRequest{UserProfile: user, CandidateProfiles: candidates})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+BatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delegate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("delegate returned status %d", resp.StatusCode)
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	want := make(map[uint64]struct{}, len(candidates))
	for _, c := range candidates {
		want[c.UserID] = struct{}{}
	}
	seen := 0
	for _, res := range results {
		if _, ok := want[res.UserID]; ok {
			seen++
			delete(want, res.UserID)
		}
	}
	if seen != len(candidates) {
		return nil, fmt.Errorf("delegate scored %d of %d candidates", seen, len(candidates))
	}
	return results, nil
}
