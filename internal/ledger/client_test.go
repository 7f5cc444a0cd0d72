package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/puygroup/pila-console/internal/pila"
)

func TestTransactionsPassesLimit(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/reconciliation/transactions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"tx-1","transactionType":"CREDIT","amount":50.5,"originWallet":{"walletType":"AFP","uniqueId":"w1"},"blockchainTxId":"0xabc"}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	txs, err := client.Transactions(context.Background(), 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if gotLimit != "10" {
		t.Fatalf("limit not forwarded, got %q", gotLimit)
	}
	if len(txs) != 1 || txs[0].BlockchainTxID != "0xabc" || txs[0].OriginWallet.UniqueID != "w1" {
		t.Fatalf("unexpected decode %+v", txs)
	}
}

func TestUploadFilesSendsBatchAndFiles(t *testing.T) {
	var gotBatch string
	var gotFiles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/files/upload" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		reader, err := r.MultipartReader()
		if err != nil {
			t.Fatalf("multipart: %v", err)
		}
		form, err := reader.ReadForm(1 << 20)
		if err != nil {
			t.Fatalf("read form: %v", err)
		}
		defer func() {
			_ = form.RemoveAll()
		}()
		if v := form.Value["batchId"]; len(v) == 1 {
			gotBatch = v[0]
		}
		for _, fh := range form.File["files"] {
			gotFiles = append(gotFiles, fh.Filename)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.UploadFiles(context.Background(), "batch-7", []pila.File{
		{Name: "a.txt", Content: []byte("x")},
		{Name: "b.txt", Content: []byte("y")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotBatch != "batch-7" {
		t.Fatalf("batch id not sent, got %q", gotBatch)
	}
	if len(gotFiles) != 2 || gotFiles[0] != "a.txt" {
		t.Fatalf("unexpected files %v", gotFiles)
	}
}

func TestNon2xxSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var observedErr error
	client := NewClient(srv.URL, time.Second, WithObserver(func(_ string, err error) {
		observedErr = err
	}))
	_, err := client.Proofs(context.Background(), 5)
	if err == nil || !strings.Contains(err.Error(), "503 Service Unavailable") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if observedErr == nil {
		t.Fatal("observer must see the failure")
	}
}
