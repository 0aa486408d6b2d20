package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"booth-kiosk/internal/auth"
	"booth-kiosk/internal/logger"
	"booth-kiosk/internal/order"
	"booth-kiosk/internal/payment"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRate    = rate.Limit(5)
	defaultBurst   = 10
)

// Client talks to the order/payment backend over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     auth.TokenSource
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenSource(src auth.TokenSource) Option {
	return func(c *Client) { c.tokens = src }
}

// WithRateLimit caps outbound requests; r <= 0 disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// ----------------- Constructor -----------------

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: &logger.Transport{},
		},
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// ----------------- Orders -----------------

type createOrderRequest struct {
	Items []order.Line `json:"items"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateOrder(ctx context.Context, lines []order.Line) (string, error) {
	var res createOrderResponse
	if err := c.post(ctx, "/orders", createOrderRequest{Items: lines}, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.post(ctx, "/orders/"+url.PathEscape(orderID)+"/cancel", nil, nil)
}

// ----------------- Payments -----------------

type qrPaymentRequest struct {
	OrderID string `json:"orderId"`
}

type studentPaymentRequest struct {
	OrderID   string `json:"orderId"`
	StudentID string `json:"studentId"`
}

type paymentResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) CreateQRPayment(ctx context.Context, orderID string) (*payment.Request, error) {
	var res paymentResponse
	if err := c.post(ctx, "/payments/qr", qrPaymentRequest{OrderID: orderID}, &res); err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, ErrMissingRequestID
	}
	return res.toRequest(orderID, payment.MethodCodeScan, ""), nil
}

func (c *Client) CreateStudentPayment(ctx context.Context, orderID, studentID string) (*payment.Request, error) {
	var res paymentResponse
	body := studentPaymentRequest{OrderID: orderID, StudentID: studentID}
	if err := c.post(ctx, "/payments/student-id", body, &res); err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, ErrMissingRequestID
	}
	return res.toRequest(orderID, payment.MethodIdentifier, studentID), nil
}

func (r paymentResponse) toRequest(orderID string, method payment.Method, fallbackToken string) *payment.Request {
	token := r.Token
	if token == "" {
		token = fallbackToken
	}
	return &payment.Request{
		ID:        r.ID,
		OrderID:   orderID,
		Method:    method,
		Token:     token,
		Status:    payment.StatusPending,
		ExpiresAt: r.ExpiresAt,
	}
}

// ----------------- Transport -----------------

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	log := logger.FromCtx(ctx).With(zap.String("path", path))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			log.Error("Failed to marshal request", zap.Error(err))
			return err
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, body)
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := auth.Authorize(req, c.tokens); err != nil {
		return fmt.Errorf("authorize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("Backend request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return fmt.Errorf("failed to read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(bodyBytes, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
		}
		log.Warn("Backend returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		log.Error("Failed decoding backend response", zap.Error(err))
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
