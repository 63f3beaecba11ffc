package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shift_report/internal/catalog"
	"shift_report/internal/report"
	"shift_report/internal/session"
)

// Client talks to the report API over HTTP. It implements ReportGateway
// and catalog.Source.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Session
}

var (
	_ ReportGateway  = (*Client)(nil)
	_ catalog.Source = (*Client)(nil)
)

// NewClient builds a client for baseURL. Requests carry the session's
// bearer token when one is set. A zero timeout leaves the transport default.
func NewClient(baseURL string, sess *session.Session, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: sess,
	}
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token    string       `json:"token"`
	Role     session.Role `json:"role"`
	Username string       `json:"username"`
}

// Login authenticates and returns the token and role. It does not touch
// the session; the caller decides when the session starts.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, &res); err != nil {
		return LoginResult{}, err
	}
	return res, nil
}

// Register creates a user. Admin only.
func (c *Client) Register(ctx context.Context, username, password string, role session.Role) error {
	body := map[string]string{"username": username, "password": password, "role": string(role)}
	return c.do(ctx, "register", http.MethodPost, "/auth/register", body, nil)
}

// User is an account as listed by the server.
type User struct {
	ID       int64        `json:"id"`
	Username string       `json:"username"`
	Role     session.Role `json:"role"`
}

// Users lists every account. Admin only.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, "list users", http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) Create(ctx context.Context, s report.Submission) (int64, error) {
	var res struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, "create report", http.MethodPost, "/reports", s, &res); err != nil {
		return 0, err
	}
	return res.ID, nil
}

func (c *Client) ListOwn(ctx context.Context) ([]report.Report, error) {
	var reports []report.Report
	if err := c.do(ctx, "list reports", http.MethodGet, "/myreports", nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Client) ListAll(ctx context.Context) ([]report.Report, error) {
	var reports []report.Report
	if err := c.do(ctx, "list all reports", http.MethodGet, "/reports", nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, "delete report", http.MethodDelete, "/reports/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) Workers(ctx context.Context) ([]catalog.Worker, error) {
	var out []catalog.Worker
	err := c.do(ctx, "load workers", http.MethodGet, "/catalog/"+string(catalog.KindWorkers), nil, &out)
	return out, err
}

func (c *Client) Segments(ctx context.Context) ([]catalog.Segment, error) {
	var out []catalog.Segment
	err := c.do(ctx, "load tramos", http.MethodGet, "/catalog/"+string(catalog.KindSegments), nil, &out)
	return out, err
}

func (c *Client) Activities(ctx context.Context) ([]catalog.Activity, error) {
	var out []catalog.Activity
	err := c.do(ctx, "load activities", http.MethodGet, "/catalog/"+string(catalog.KindActivities), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{Op: op, Status: resp.StatusCode, Message: serverMessage(resp.StatusCode, data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func serverMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return payload.Message
	}
	return "request failed: " + strings.ToLower(http.StatusText(status))
}
