package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devicepubs/curator/internal/record"
)

// RemoteClassifier calls an external ML classification service. It is
// non-deterministic and network-dependent; callers treat it as optional.
type RemoteClassifier struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ Classifier = (*RemoteClassifier)(nil)

// NewRemoteClassifier creates a reusable HTTP classifier client.
func NewRemoteClassifier(endpoint, apiKey string) *RemoteClassifier {
	return &RemoteClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Classify sends title and abstract for labeling.
func (c *RemoteClassifier) Classify(ctx context.Context, title, abstract string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"title":    title,
		"abstract": abstract,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/classify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %s", resp.Status)
	}

	var body struct {
		Labels []struct {
			Category   string  `json:"category"`
			Confidence float64 `json:"confidence"`
		} `json:"labels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	res := &Result{}
	for _, l := range body.Labels {
		res.Suggestions = append(res.Suggestions, record.Suggestion{
			Category:   l.Category,
			Confidence: l.Confidence,
			Source:     sourceClassifier,
		})
	}
	return res, nil
}

// Merged combines the external classifier with the keyword rules. External
// labels take precedence; keyword matches fill the remaining slots, and the
// keyword strategy carries the whole load when the external call fails.
type Merged struct {
	Remote  Classifier
	Keyword Classifier
}

var _ Classifier = (*Merged)(nil)

// Classify applies the precedence rule. It never fails as long as the
// keyword strategy is configured.
func (m *Merged) Classify(ctx context.Context, title, abstract string) (*Result, error) {
	kw, err := m.Keyword.Classify(ctx, title, abstract)
	if err != nil {
		return nil, err
	}
	if m.Remote == nil {
		return kw, nil
	}

	remote, err := m.Remote.Classify(ctx, title, abstract)
	if err != nil {
		// Degraded mode: keyword results only.
		return kw, nil
	}

	merged := &Result{Keywords: kw.Keywords}
	taken := make(map[string]bool)
	for _, s := range remote.Suggestions {
		if len(merged.Suggestions) == MaxTopics {
			break
		}
		taken[s.Category] = true
		merged.Suggestions = append(merged.Suggestions, s)
	}
	for _, s := range kw.Suggestions {
		if len(merged.Suggestions) == MaxTopics {
			break
		}
		if taken[s.Category] {
			continue
		}
		merged.Suggestions = append(merged.Suggestions, s)
	}
	return merged, nil
}
