package pila

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// File is one planilla document as uploaded by the operator. Contents are
// held in memory for the lifetime of a batch so exports can re-send them.
type File struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Client wraps interactions with the remote PILA validation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observe    func(endpoint string, err error)
}

// ClientOption customises client construction.
type ClientOption func(*Client)

// WithObserver registers a callback invoked after every request, used to
// feed the remote-call metrics.
func WithObserver(fn func(endpoint string, err error)) ClientOption {
	return func(c *Client) { c.observe = fn }
}

// NewClient constructs a new client. Document processing can take a while
// on large batches, so the timeout comes from configuration.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// filesForm builds a multipart body carrying every file under the
// "archivos" field plus any extra plain fields.
func filesForm(files []File, extra map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile("archivos", f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}
	for key, val := range extra {
		if err := writer.WriteField(key, val); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	endpoint := path
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		_ = resp.Body.Close()
		err = fmt.Errorf("pila api %s: %s", endpoint, resp.Status)
		resp = nil
	}
	if c.observe != nil {
		c.observe(endpoint, err)
	}
	return resp, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postFiles(ctx context.Context, path string, files []File, extra map[string]string, out any) error {
	body, contentType, err := filesForm(files, extra)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postFilesBlob(ctx context.Context, path string, files []File) ([]byte, error) {
	body, contentType, err := filesForm(files, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}

func pageQuery(page, pageSize int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	return q.Encode()
}

func csvIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Process runs the rule validations (R04-R08, matriz) over a batch of
// planilla files and returns filename-keyed records.
func (c *Client) Process(ctx context.Context, files []File) (map[string]ValidationRecord, error) {
	var out map[string]ValidationRecord
	if err := c.postFiles(ctx, "/procesar-planilla", files, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessV2 runs the combined v2 flow: validations, financial matching
// against the selected extracts, missing-affiliate detection and totals.
func (c *Client) ProcessV2(ctx context.Context, files []File, extractIDs []int64) (*ProcessV2Response, error) {
	idsJSON, err := json.Marshal(extractIDs)
	if err != nil {
		return nil, err
	}
	var out ProcessV2Response
	if err := c.postFiles(ctx, "/procesar-planilla-2", files, map[string]string{"extractoIds": string(idsJSON)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MatchLog cross-checks a batch against the financial log restricted to the
// selected extracts and returns filename-keyed match outcomes.
func (c *Client) MatchLog(ctx context.Context, files []File, extractIDs []int64) (map[string]MatchEntry, error) {
	var out map[string]MatchEntry
	extra := map[string]string{"extracto_ids": csvIDs(extractIDs)}
	if err := c.postFiles(ctx, "/log-match-bd", files, extra, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportExcel re-submits the batch and returns the xlsx validation report.
func (c *Client) ExportExcel(ctx context.Context, files []File) ([]byte, error) {
	return c.postFilesBlob(ctx, "/exportar-excel", files)
}

// Extract400 re-submits the batch and returns the JSON extraction of the
// fully valid files. The payload is passed through untouched.
func (c *Client) Extract400(ctx context.Context, files []File) ([]byte, error) {
	return c.postFilesBlob(ctx, "/extraer-cuatrocientos", files)
}

// ListExtracts returns the uploaded bank statements.
func (c *Client) ListExtracts(ctx context.Context) ([]Extract, error) {
	var out []Extract
	if err := c.getJSON(ctx, "/extractos", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadExtract registers a new bank statement file under a display name.
func (c *Client) UploadExtract(ctx context.Context, nombre, descripcion string, file File) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(file.Content); err != nil {
		return err
	}
	if err := writer.WriteField("nombre", nombre); err != nil {
		return err
	}
	if err := writer.WriteField("descripcion", descripcion); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/extractos/upload", body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// ExtractRecords pages through the records of one extract, filtered by the
// normalized filter body.
func (c *Client) ExtractRecords(ctx context.Context, extractID int64, page, pageSize int, filters map[string]any) (*LogPage, error) {
	path := fmt.Sprintf("/extractos/%d/registros?%s", extractID, pageQuery(page, pageSize))
	var out LogPage
	if err := c.postJSON(ctx, path, filters, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryLog pages through the financial log filtered by the normalized
// filter body.
func (c *Client) QueryLog(ctx context.Context, page, pageSize int, filters map[string]any) (*LogPage, error) {
	path := "/query-log?" + pageQuery(page, pageSize)
	var out LogPage
	if err := c.postJSON(ctx, path, filters, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Conciliaciones pages through the reconciliation matches. Period is
// "YYYY-MM" and razonSocial narrows by contributor name; either may be empty.
func (c *Client) Conciliaciones(ctx context.Context, page, pageSize int, periodo, razonSocial string) (*ConcilPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if periodo != "" {
		q.Set("periodo", periodo)
	}
	if razonSocial != "" {
		q.Set("razon_social", razonSocial)
	}
	var out ConcilPage
	if err := c.getJSON(ctx, "/conciliaciones-paginated?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchAfiliados returns contributor-name suggestions for the prefix.
func (c *Client) SearchAfiliados(ctx context.Context, search string) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, "/afiliados?search="+url.QueryEscape(search), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rezagos pages through the correction-task queue, optionally narrowed by
// estado.
func (c *Client) Rezagos(ctx context.Context, page, pageSize int, estado string) (*RezagoPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if estado != "" {
		q.Set("estado", estado)
	}
	var out RezagoPage
	if err := c.getJSON(ctx, "/rezagos-paginated?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RezagosPlanoPago returns the Error 009 subset destined for the payment
// flat file.
func (c *Client) RezagosPlanoPago(ctx context.Context) ([]Rezago, error) {
	var out []Rezago
	if err := c.getJSON(ctx, "/rezagos-plano-pago", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlanoPagoExcel returns the payment flat file as an xlsx blob.
func (c *Client) PlanoPagoExcel(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/generar-excel-plano-pago", nil, "")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}

// Saldos returns the AFP fund balance snapshots.
func (c *Client) Saldos(ctx context.Context) ([]Saldo, error) {
	var out []Saldo
	if err := c.getJSON(ctx, "/saldos-afp", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PilasConConciliacion returns processed declarations with reconciliation
// status, for the accreditation panel.
func (c *Client) PilasConConciliacion(ctx context.Context) ([]Pila, error) {
	var out []Pila
	if err := c.getJSON(ctx, "/pilas-con-conciliacion", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Acreditar triggers bulk accreditation of the given pilas.
func (c *Client) Acreditar(ctx context.Context, pilaIDs []int64) error {
	return c.postJSON(ctx, "/acreditar-cuatrocientos", map[string][]int64{"pila_ids": pilaIDs}, nil)
}
