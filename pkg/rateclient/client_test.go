package rateclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetRateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v6/test-key/pair/SGD/MYR" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","base_code":"SGD","target_code":"MYR","conversion_rate":3.2}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)
	rate, err := client.GetRate(context.Background(), "SGD", "MYR")
	if err != nil {
		t.Fatalf("GetRate returned error: %v", err)
	}
	if rate != 3.2 {
		t.Errorf("expected rate 3.2, got %v", rate)
	}
}

func TestGetRateProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)
	if _, err := client.GetRate(context.Background(), "SGD", "XXX"); err == nil {
		t.Fatal("expected error for provider error result, got nil")
	}
}

func TestGetRateNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)
	if _, err := client.GetRate(context.Background(), "SGD", "MYR"); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

func TestGetRateRejectsInvalidRates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero rate", `{"result":"success","conversion_rate":0}`},
		{"negative rate", `{"result":"success","conversion_rate":-1.5}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key", 5*time.Second)
			if _, err := client.GetRate(context.Background(), "SGD", "MYR"); err == nil {
				t.Fatal("expected error for invalid rate, got nil")
			}
		})
	}
}
