// Package ledger integrates the blockchain reconciliation service: the
// read-only transaction and proof feeds, and the batch file upload that
// the queue worker performs after a v2 validation.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/puygroup/pila-console/internal/pila"
)

// Wallet identifies one side of a ledger transaction.
type Wallet struct {
	WalletType string `json:"walletType"`
	UniqueID   string `json:"uniqueId"`
}

// Transaction is one ledger movement.
type Transaction struct {
	ID                string  `json:"id"`
	TransactionType   string  `json:"transactionType"`
	Amount            float64 `json:"amount"`
	Description       string  `json:"description"`
	Status            string  `json:"status"`
	OriginWallet      *Wallet `json:"originWallet"`
	DestinationWallet *Wallet `json:"destinationWallet"`
	BlockchainTxID    string  `json:"blockchainTxId"`
	CreatedAt         string  `json:"createdAt"`
}

// Proof is one batch validation proof anchored on chain.
type Proof struct {
	ID             string  `json:"id"`
	BatchID        string  `json:"batchId"`
	ValidFiles     int     `json:"validFiles"`
	TotalFiles     int     `json:"totalFiles"`
	ValidationRate float64 `json:"validationRate"`
	Status         string  `json:"status"`
	Signature      string  `json:"signature"`
	CreatedAt      string  `json:"createdAt"`
}

// Client talks to the ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observe    func(endpoint string, err error)
}

// ClientOption customizes the ledger client.
type ClientOption func(*Client)

// WithObserver installs a per-request hook, used for metrics.
func WithObserver(fn func(endpoint string, err error)) ClientOption {
	return func(c *Client) { c.observe = fn }
}

func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		_ = resp.Body.Close()
		err = fmt.Errorf("ledger api %s: %s", endpoint, resp.Status)
		resp = nil
	}
	if c.observe != nil {
		c.observe(endpoint, err)
	}
	return resp, err
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, path, nil, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ledger api %s: decode: %w", endpoint, err)
	}
	return nil
}

// Transactions returns the most recent ledger movements.
func (c *Client) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	var out []Transaction
	path := "/reconciliation/transactions?limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, "/reconciliation/transactions", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Proofs returns the most recent batch validation proofs.
func (c *Client) Proofs(ctx context.Context, limit int) ([]Proof, error) {
	var out []Proof
	path := "/reconciliation/blockchain-proofs?limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, "/reconciliation/blockchain-proofs", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadFiles anchors a validated batch. Called from the queue worker, not
// from request handlers.
func (c *Client) UploadFiles(ctx context.Context, batchID string, files []pila.File) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("batchId", batchID); err != nil {
		return err
	}
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Content); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/transactions/files/upload", "/transactions/files/upload", body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
