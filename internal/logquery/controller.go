package logquery

import (
	"context"
	"sync"
	"time"

	"github.com/puygroup/pila-console/internal/pila"
)

// Querier is the slice of the remote client the controller depends on.
type Querier interface {
	QueryLog(ctx context.Context, page, pageSize int, filters map[string]any) (*pila.LogPage, error)
}

// Debouncer coalesces bursts of calls into a single run after a quiet
// window. Scheduling replaces any pending run; Cancel drops it.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer returns a debouncer with the given quiet window. A zero
// delay runs callbacks synchronously, which keeps tests deterministic.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule arranges fn to run after the quiet window, replacing any
// previously scheduled function.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		fn()
		return
	}
	d.timer = time.AfterFunc(d.delay, fn)
	d.mu.Unlock()
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

// Snapshot is an immutable copy of the controller state for rendering.
type Snapshot struct {
	Raw          map[string]string
	Rows         []pila.LogRow
	Page         int
	PageSize     int
	TotalRecords int
	TotalPages   int
	Loading      bool
	ErrMessage   string
	// Directive is set instead of querying when the required selector
	// is missing.
	Directive string
}

// Controller owns the query lifecycle of one log table: raw filter edits,
// the debounced commit, pagination, and result state. Responses carry a
// monotonic sequence number so a slow stale response can never overwrite a
// newer one.
type Controller struct {
	querier  Querier
	debounce *Debouncer
	timeout  time.Duration

	// requireKey, when set, must be present in the raw filters before any
	// query is issued; directive explains what to select.
	requireKey string
	directive  string

	mu           sync.Mutex
	raw          map[string]string
	page         int
	pageSize     int
	rows         []pila.LogRow
	totalRecords int
	totalPages   int
	loading      bool
	errMessage   string
	issued       uint64
	applied      uint64
}

// Option tweaks controller construction.
type Option func(*Controller)

// WithRequiredFilter skips querying until the raw filter under key is set,
// surfacing the directive message instead.
func WithRequiredFilter(key, directive string) Option {
	return func(c *Controller) {
		c.requireKey = key
		c.directive = directive
	}
}

// WithDebounce overrides the commit quiet window.
func WithDebounce(delay time.Duration) Option {
	return func(c *Controller) { c.debounce = NewDebouncer(delay) }
}

// DefaultDebounce is the quiet window between a filter keystroke and the
// committed query.
const DefaultDebounce = 500 * time.Millisecond

// NewController builds an idle controller. No query runs until the first
// filter edit, Refresh or page change.
func NewController(querier Querier, pageSize int, opts ...Option) *Controller {
	c := &Controller{
		querier:  querier,
		debounce: NewDebouncer(DefaultDebounce),
		timeout:  30 * time.Second,
		raw:      make(map[string]string),
		page:     1,
		pageSize: pageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFilter records a raw filter edit, resets to the first page and
// schedules a debounced commit. An empty value removes the filter.
func (c *Controller) SetFilter(key, value string) {
	c.mu.Lock()
	if value == "" {
		delete(c.raw, key)
	} else {
		c.raw[key] = value
	}
	c.page = 1
	c.loading = true
	c.mu.Unlock()
	c.debounce.Schedule(c.runQuery)
}

// SetFilters replaces the whole raw filter map, resetting to page one and
// scheduling a debounced commit.
func (c *Controller) SetFilters(raw map[string]string) {
	c.mu.Lock()
	c.raw = make(map[string]string, len(raw))
	for k, v := range raw {
		if v != "" {
			c.raw[k] = v
		}
	}
	c.page = 1
	c.loading = true
	c.mu.Unlock()
	c.debounce.Schedule(c.runQuery)
}

// ClearFilters drops every filter, cancels any pending commit and queries
// immediately.
func (c *Controller) ClearFilters() {
	c.debounce.Cancel()
	c.mu.Lock()
	c.raw = make(map[string]string)
	c.page = 1
	c.loading = true
	c.mu.Unlock()
	c.runQuery()
}

// SetPage moves to the given page immediately. Page changes are not
// debounced; out-of-range requests clamp into [1, totalPages].
func (c *Controller) SetPage(page int) {
	c.debounce.Cancel()
	c.mu.Lock()
	if page < 1 {
		page = 1
	}
	if c.totalPages > 0 && page > c.totalPages {
		page = c.totalPages
	}
	c.page = page
	c.loading = true
	c.mu.Unlock()
	c.runQuery()
}

// Refresh re-runs the committed query as-is.
func (c *Controller) Refresh() {
	c.debounce.Cancel()
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()
	c.runQuery()
}

func (c *Controller) runQuery() {
	c.mu.Lock()
	if c.requireKey != "" && c.raw[c.requireKey] == "" {
		c.rows = nil
		c.totalRecords = 0
		c.totalPages = 0
		c.loading = false
		c.errMessage = ""
		c.mu.Unlock()
		return
	}
	c.issued++
	seq := c.issued
	filters := NormalizeFilters(c.raw)
	page, pageSize := c.page, c.pageSize
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	result, err := c.querier.QueryLog(ctx, page, pageSize, filters)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		return
	}
	c.applied = seq
	c.loading = c.issued > seq
	if err != nil {
		// Failed queries empty the rows but keep the last known totals
		// so the pager does not jump around while the operator retries.
		c.rows = nil
		c.errMessage = err.Error()
		return
	}
	c.errMessage = ""
	c.rows = result.Data
	c.totalRecords = result.TotalRecords
	c.totalPages = result.TotalPages
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw := make(map[string]string, len(c.raw))
	for k, v := range c.raw {
		raw[k] = v
	}
	rows := make([]pila.LogRow, len(c.rows))
	copy(rows, c.rows)
	s := Snapshot{
		Raw:          raw,
		Rows:         rows,
		Page:         c.page,
		PageSize:     c.pageSize,
		TotalRecords: c.totalRecords,
		TotalPages:   c.totalPages,
		Loading:      c.loading,
		ErrMessage:   c.errMessage,
	}
	if c.requireKey != "" && c.raw[c.requireKey] == "" {
		s.Directive = c.directive
	}
	return s
}
