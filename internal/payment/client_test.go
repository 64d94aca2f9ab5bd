package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfirmSessionPaid(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/checkout/sessions/cs_test_123" {
			test.Errorf("unexpected path: %s", request.URL.Path)
		}
		if request.Header.Get("Authorization") != "Bearer sk_test_abc" {
			test.Errorf("unexpected authorization header: %s", request.Header.Get("Authorization"))
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"id":"cs_test_123","payment_status":"paid","amount_total":999,"currency":"EUR"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "sk_test_abc", time.Second)
	if err != nil {
		test.Fatalf("client init: %v", err)
	}
	confirmation, err := client.ConfirmSession(context.Background(), "cs_test_123")
	if err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if !confirmation.Paid {
		test.Fatalf("expected paid confirmation")
	}
	if confirmation.AmountCents != 999 || confirmation.Currency != "eur" {
		test.Fatalf("unexpected confirmation: %+v", confirmation)
	}
}

func TestConfirmSessionUnpaid(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte(`{"id":"cs_test_open","payment_status":"unpaid","amount_total":999,"currency":"eur"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "sk_test_abc", time.Second)
	if err != nil {
		test.Fatalf("client init: %v", err)
	}
	confirmation, err := client.ConfirmSession(context.Background(), "cs_test_open")
	if err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if confirmation.Paid {
		test.Fatalf("unpaid session must not report paid")
	}
}

func TestConfirmSessionProviderError(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout session"}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "sk_test_abc", time.Second)
	if err != nil {
		test.Fatalf("client init: %v", err)
	}
	if _, err := client.ConfirmSession(context.Background(), "cs_missing"); err == nil {
		test.Fatalf("expected provider error")
	}
}

func TestNewClientValidatesInputs(test *testing.T) {
	test.Parallel()
	if _, err := NewClient("", "sk", time.Second); err == nil {
		test.Fatalf("expected base url rejection")
	}
	if _, err := NewClient("https://api.example", " ", time.Second); err == nil {
		test.Fatalf("expected secret rejection")
	}
}
