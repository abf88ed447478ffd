package rehiveclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateReceiveParsesTxCode(t *testing.T) {
	var gotAuth string
	var gotBody ReceiveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admins/transactions/receive/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"success","data":{"tx_code":"TX123"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "admin-token")

	result, err := client.CreateReceive(context.Background(), ReceiveRequest{
		Recipient:     "user-1",
		Amount:        500000000,
		Currency:      "XBT",
		FromReference: "deadbeef",
	})
	if err != nil {
		t.Fatalf("CreateReceive returned error: %v", err)
	}
	if result.TxCode != "TX123" {
		t.Errorf("expected tx_code TX123, got %q", result.TxCode)
	}
	if gotAuth != "Token admin-token" {
		t.Errorf("expected token auth header, got %q", gotAuth)
	}
	if gotBody.FromReference != "deadbeef" {
		t.Errorf("expected from_reference to carry the hash, got %q", gotBody.FromReference)
	}
}

func TestCreateReceiveReturnsAPIErrorWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"error","message":"boom"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "admin-token")
	_, err := client.CreateReceive(context.Background(), ReceiveRequest{Recipient: "user-1"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", apiErr.StatusCode)
	}
	if string(apiErr.Body) != `{"status":"error","message":"boom"}` {
		t.Errorf("expected body preserved verbatim, got %q", string(apiErr.Body))
	}
}

func TestUpdateStatusTransportErrorIsNotAPIError(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "admin-token")
	_, err := client.UpdateStatus(context.Background(), "TX123", "Confirmed")
	if err == nil {
		t.Fatal("expected a transport error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("transport failure must not surface as *APIError, got %v", err)
	}
}

func TestUpdateStatusPostsTxCode(t *testing.T) {
	var got UpdateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admins/transactions/update/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "admin-token")
	body, err := client.UpdateStatus(context.Background(), "TX123", "Confirmed")
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if got.TxCode != "TX123" || got.Status != "Confirmed" {
		t.Errorf("unexpected update payload: %+v", got)
	}
	if string(body) != `{"status":"success"}` {
		t.Errorf("expected raw body returned, got %q", string(body))
	}
}
