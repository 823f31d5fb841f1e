// Package airtable implements store.Base over the Airtable REST API.
package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JonMunkholm/publsync/internal/logging"
	"github.com/JonMunkholm/publsync/internal/store"
)

const (
	DefaultBaseURL = "https://api.airtable.com"
	DefaultTimeout = 30 * time.Second

	pageSize = 100
)

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseID  string
	BaseURL string        // Defaults to DefaultBaseURL
	Timeout time.Duration // Defaults to DefaultTimeout
	Logger  *slog.Logger
}

// Client is a store.Base backed by one Airtable base.
type Client struct {
	http   *resty.Client
	baseID string
	log    *slog.Logger
}

// New creates a client. Requests and responses are logged at debug level.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("airtable: api key is required")
	}
	if opts.BaseID == "" {
		return nil, errors.New("airtable: base id is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	log := opts.Logger.With("component", "airtable")

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetAuthToken(opts.APIKey).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")

	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		logging.With(r.Context(), log).Debug("request", "method", r.Method, "url", r.URL)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		logging.With(r.Request.Context(), log).Debug("response",
			"method", r.Request.Method,
			"url", r.Request.URL,
			"status", r.StatusCode(),
			"duration", r.Time(),
		)
		return nil
	})

	return &Client{http: client, baseID: opts.BaseID, log: log}, nil
}

// Table returns a handle to the named table.
func (c *Client) Table(name string) store.Table {
	return &Table{client: c, name: name}
}

type tablesBody struct {
	Tables []store.TableSchema `json:"tables"`
}

// Tables lists the schema of every table in the base.
func (c *Client) Tables(ctx context.Context) ([]store.TableSchema, error) {
	var out tablesBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("base", c.baseID).
		SetResult(&out).
		Get("/v0/meta/bases/{base}/tables")
	if err := checkResponse("", resp, err); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out.Tables, nil
}

// CreateTable creates a table and returns its schema with ids assigned.
func (c *Client) CreateTable(ctx context.Context, schema store.TableSchema) (store.TableSchema, error) {
	var out store.TableSchema
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("base", c.baseID).
		SetBody(schema).
		SetResult(&out).
		Post("/v0/meta/bases/{base}/tables")
	if err := checkResponse(schema.Name, resp, err); err != nil {
		return store.TableSchema{}, fmt.Errorf("create table %s: %w", schema.Name, err)
	}
	return out, nil
}

// Table is a handle to one Airtable table.
type Table struct {
	client *Client
	name   string
}

func (t *Table) Name() string { return t.name }

type recordsBody struct {
	Records []store.Record `json:"records"`
	Offset  string         `json:"offset,omitempty"`
}

func (t *Table) request(ctx context.Context) *resty.Request {
	return t.client.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"base": t.client.baseID, "table": t.name})
}

// FetchAll pages through the table with the offset cursor.
func (t *Table) FetchAll(ctx context.Context) ([]store.Record, error) {
	var all []store.Record
	offset := ""
	for {
		var page recordsBody
		req := t.request(ctx).
			SetQueryParam("pageSize", fmt.Sprint(pageSize)).
			SetResult(&page)
		if offset != "" {
			req.SetQueryParam("offset", offset)
		}

		resp, err := req.Get("/v0/{base}/{table}")
		if err := checkResponse(t.name, resp, err); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", t.name, err)
		}

		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

// BatchCreate inserts up to store.MaxBatchSize records.
func (t *Table) BatchCreate(ctx context.Context, fields []store.Fields) ([]store.Record, error) {
	if len(fields) > store.MaxBatchSize {
		return nil, fmt.Errorf("create %s: %w: %d records", t.name, store.ErrBatchTooLarge, len(fields))
	}
	if len(fields) == 0 {
		return nil, nil
	}

	body := recordsBody{Records: make([]store.Record, len(fields))}
	for i, f := range fields {
		body.Records[i] = store.Record{Fields: f}
	}

	var out recordsBody
	resp, err := t.request(ctx).SetBody(body).SetResult(&out).Post("/v0/{base}/{table}")
	if err := checkResponse(t.name, resp, err); err != nil {
		return nil, fmt.Errorf("create %s: %w", t.name, err)
	}
	return out.Records, nil
}

// BatchUpdate patches up to store.MaxBatchSize records by id.
func (t *Table) BatchUpdate(ctx context.Context, records []store.Record) ([]store.Record, error) {
	if len(records) > store.MaxBatchSize {
		return nil, fmt.Errorf("update %s: %w: %d records", t.name, store.ErrBatchTooLarge, len(records))
	}
	if len(records) == 0 {
		return nil, nil
	}

	body := recordsBody{Records: make([]store.Record, len(records))}
	for i, r := range records {
		body.Records[i] = store.Record{ID: r.ID, Fields: r.Fields}
	}

	var out recordsBody
	resp, err := t.request(ctx).SetBody(body).SetResult(&out).Patch("/v0/{base}/{table}")
	if err := checkResponse(t.name, resp, err); err != nil {
		return nil, fmt.Errorf("update %s: %w", t.name, err)
	}
	return out.Records, nil
}

// BatchDelete deletes up to store.MaxBatchSize records by id.
func (t *Table) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) > store.MaxBatchSize {
		return fmt.Errorf("delete %s: %w: %d records", t.name, store.ErrBatchTooLarge, len(ids))
	}
	if len(ids) == 0 {
		return nil
	}

	params := url.Values{}
	for _, id := range ids {
		params.Add("records[]", id)
	}
	resp, err := t.request(ctx).SetQueryParamsFromValues(params).Delete("/v0/{base}/{table}")
	if err := checkResponse(t.name, resp, err); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

// APIError is an error response from the API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("airtable: %d %s", e.Status, e.Type)
	}
	return fmt.Sprintf("airtable: %d %s: %s", e.Status, e.Type, e.Message)
}

// Is maps not-found responses onto store.ErrTableNotFound.
func (e *APIError) Is(target error) bool {
	return target == store.ErrTableNotFound &&
		(e.Type == "NOT_FOUND" || e.Type == "TABLE_NOT_FOUND")
}

// checkResponse turns transport failures and error responses into errors.
// An unknown select option becomes *store.InvalidOptionError.
func checkResponse(table string, resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := parseError(resp.StatusCode(), resp.Body())
	if apiErr.Type == "INVALID_MULTIPLE_CHOICE_OPTIONS" {
		return &store.InvalidOptionError{Table: table, Message: apiErr.Message}
	}
	return apiErr
}

// parseError decodes both error shapes the API returns:
//
//	{"error": {"type": "...", "message": "..."}}
//	{"error": "NOT_FOUND"}
func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Type: http.StatusText(status)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		if detail.Type != "" {
			apiErr.Type = detail.Type
		}
		apiErr.Message = detail.Message
		return apiErr
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil && code != "" {
		apiErr.Type = code
	}
	return apiErr
}
