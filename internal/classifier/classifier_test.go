package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"go.uber.org/zap"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, 2*time.Second, zap.NewNop()), srv
}

func TestClassifyValidResponse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"shouldRespond": true,
			"confidence": 0.85,
			"isQuestion": true,
			"topic": "dnd",
			"sensitivity": "low",
			"reason": "direct question about the campaign"
		}`))
	})
	defer srv.Close()

	cls, err := c.Classify(context.Background(), Request{Message: "who is the lich?"})
	if err != nil {
		t.Fatal(err)
	}
	if !cls.ShouldRespond || cls.Confidence != 0.85 || cls.Topic != models.TopicDnD {
		t.Errorf("unexpected classification %+v", cls)
	}
	if cls.Sensitivity != models.SensitivityLow {
		t.Errorf("unexpected sensitivity %q", cls.Sensitivity)
	}
}

func TestClassifyRejectsPartialResponse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"shouldRespond": true, "confidence": 0.9}`))
	})
	defer srv.Close()

	if _, err := c.Classify(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected an error for a partial response")
	}
}

func TestClassifyRejectsUnknownEnums(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"shouldRespond": true,
			"confidence": 0.9,
			"isQuestion": false,
			"topic": "sports",
			"sensitivity": "low",
			"reason": "x"
		}`))
	})
	defer srv.Close()

	if _, err := c.Classify(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected an error for an unknown topic")
	}
}

func TestClassifyRejectsOutOfRangeConfidence(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"shouldRespond": true,
			"confidence": 1.5,
			"isQuestion": false,
			"topic": "other",
			"sensitivity": "low",
			"reason": "x"
		}`))
	})
	defer srv.Close()

	if _, err := c.Classify(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected an error for out-of-range confidence")
	}
}

func TestClassifyNon2xxIsError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	defer srv.Close()

	if _, err := c.Classify(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected an error for a 500")
	}
}

func TestClassifyEmptyMessageIsError(t *testing.T) {
	c := New("http://localhost:1", time.Second, zap.NewNop())
	if _, err := c.Classify(context.Background(), Request{}); err == nil {
		t.Fatal("expected an error for an empty message")
	}
}

func TestHealthy(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	defer srv.Close()

	if !c.Healthy(context.Background()) {
		t.Error("expected healthy")
	}

	bad := New("http://localhost:1", time.Second, zap.NewNop())
	if bad.Healthy(context.Background()) {
		t.Error("expected unhealthy for an unreachable service")
	}
}
