// ABOUTME: Tests for the recommendation client and prompt construction
// ABOUTME: Uses an httptest chat-completions stub

package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/internal/metrics"
	"github.com/nainya/querylens/pkg/group"
	"github.com/nainya/querylens/pkg/metacache"
	"github.com/nainya/querylens/pkg/profile"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(logger.Config{Level: "error", Output: io.Discard})
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetricsWith(prometheus.NewRegistry())
}

func testGroup() *group.QueryGroup {
	return &group.QueryGroup{
		Signature: "deadbeefdeadbeef",
		Representative: &profile.OperationRecord{
			Namespace:  profile.Namespace{Database: "shop", Collection: "orders"},
			Kind:       profile.OpFind,
			DurationMS: 150,
			ObservedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
			Raw:        bson.M{"op": "query", "ns": "shop.orders"},
		},
		Count:   3,
		MinMS:   40,
		MaxMS:   150,
		TotalMS: 270,
	}
}

func testEntry() *metacache.Entry {
	return &metacache.Entry{
		Collection: "orders",
		Schema:     map[string]string{"status": "string", "total": "float"},
		Indexes: []metacache.IndexInfo{
			{Name: "_id_", Keys: []metacache.IndexKey{{Field: "_id", Spec: "1"}}},
			{Name: "status_1", Keys: []metacache.IndexKey{{Field: "status", Spec: "1"}}, Unique: true},
		},
		FetchedAt: time.Now(),
	}
}

func TestBuildPromptWithMetadata(t *testing.T) {
	prompt := BuildPrompt(testGroup(), testEntry(), nil)

	for _, want := range []string{
		"shop.orders",
		"this pattern affects 3 queries",
		"min 40, max 150, avg 90.0",
		"status_1 {status: 1} (unique)",
		`"status":"string"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptWithoutMetadata(t *testing.T) {
	prompt := BuildPrompt(testGroup(), nil, nil)

	if !strings.Contains(prompt, "unavailable") {
		t.Errorf("Prompt must flag missing schema context:\n%s", prompt)
	}
	if strings.Contains(prompt, "Existing Indexes") {
		t.Error("Prompt must not render an index section without metadata")
	}
}

func TestBuildPromptExplainPlan(t *testing.T) {
	plan := bson.M{
		"queryPlanner": bson.M{
			"winningPlan": bson.M{"stage": "COLLSCAN"},
		},
	}

	with := BuildPrompt(testGroup(), testEntry(), plan)
	if !strings.Contains(with, "Explain Plan (queryPlanner)") {
		t.Errorf("Prompt missing the explain plan section:\n%s", with)
	}
	if !strings.Contains(with, "COLLSCAN") {
		t.Errorf("Prompt missing the plan content:\n%s", with)
	}

	without := BuildPrompt(testGroup(), testEntry(), nil)
	if !strings.Contains(without, "Explain Plan (queryPlanner) ---\nN/A") {
		t.Errorf("Prompt must flag a missing plan with N/A:\n%s", without)
	}
}

func TestRecommend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("Expected test-model, got %q", req.Model)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "shop.orders") {
			t.Error("Request must carry the group prompt")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: "Add a compound index on (status, total)."}},
			},
		})
	}))
	defer ts.Close()

	client := NewClient(Config{
		Endpoint: ts.URL,
		APIKey:   "test-key",
		Model:    "test-model",
	}, testLogger(), testMetrics())

	text, err := client.Recommend(context.Background(), testGroup(), testEntry(), nil)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if text != "Add a compound index on (status, total)." {
		t.Errorf("Unexpected recommendation: %q", text)
	}
}

func TestRecommendServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(Config{Endpoint: ts.URL, APIKey: "k", Model: "m"}, testLogger(), testMetrics())
	if _, err := client.Recommend(context.Background(), testGroup(), nil, nil); err == nil {
		t.Fatal("Expected an error for a non-200 response")
	}
}

func TestRecommendEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	client := NewClient(Config{Endpoint: ts.URL, APIKey: "k", Model: "m"}, testLogger(), testMetrics())
	if _, err := client.Recommend(context.Background(), testGroup(), nil, nil); err == nil {
		t.Fatal("Expected an error for a response without choices")
	}
}

func TestRecommendMissingAPIKey(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://localhost:1", Model: "m"}, testLogger(), testMetrics())
	if _, err := client.Recommend(context.Background(), testGroup(), nil, nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Expected ErrNoAPIKey, got %v", err)
	}
}
