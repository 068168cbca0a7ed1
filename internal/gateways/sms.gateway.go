package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrNoAvailableProviders = errors.New("no available providers")
	// ErrRejected is returned when a provider refused the message itself.
	// Sending it again will not help.
	ErrRejected = errors.New("message rejected by provider")
)

// SendRequest is one SMS. To is formatted with FormatPhone before sending.
type SendRequest struct {
	MessageID string
	To        string
	Body      string
}

type SendResponse struct {
	SID      string `json:"sid"`
	Status   string `json:"status"`
	To       string `json:"to"`
	Provider string `json:"-"`
}

type providerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // 1-100
}

type Config struct {
	Providers   []ProviderConfig
	AccountSID  string
	AuthToken   string
	From        string
	CountryCode string

	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	// Dial overrides the TCP dialer of every provider client.
	Dial fasthttp.DialFunc
}

type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.ConsecutiveFails.Store(0)
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *ProviderMetrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

type ProviderState int32

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

type Provider struct {
	name             string
	url              string
	weight           int
	client           *fasthttp.Client
	metrics          ProviderMetrics
	state            atomic.Int32
	circuitOpenUntil atomic.Int64 // unix nanos
}

func NewProvider(name, url string, weight int, client *fasthttp.Client) *Provider {
	return &Provider{
		name:   name,
		url:    strings.TrimRight(url, "/"),
		weight: weight,
		client: client,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) GetState() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(state ProviderState) {
	p.state.Store(int32(state))
}

// IsAvailable reports whether the provider may be used. An open circuit
// half-opens into StateDegraded once its timeout passed.
func (p *Provider) IsAvailable() bool {
	if p.GetState() != StateCircuitOpen {
		return true
	}
	if time.Now().UnixNano() > p.circuitOpenUntil.Load() {
		p.SetState(StateDegraded)
		return true
	}
	return false
}

// CalculateScore ranks providers, higher is better.
func (p *Provider) CalculateScore() float64 {
	if !p.IsAvailable() {
		return 0
	}

	latencyScore := 100.0 * (1.0 - float64(p.metrics.AvgLatencyMs())/5000.0)
	if latencyScore < 0 {
		latencyScore = 0
	}

	recentPenalty := 1.0 - float64(p.metrics.ConsecutiveFails.Load())*0.1
	if recentPenalty < 0.1 {
		recentPenalty = 0.1
	}

	statePenalty := 1.0
	if p.GetState() == StateDegraded {
		statePenalty = 0.5
	}

	score := p.metrics.SuccessRate()*100*0.4 + latencyScore*0.4 + float64(p.weight)*0.2
	return score * recentPenalty * statePenalty
}

// Client sends SMS through Twilio compatible providers, failing over to the
// next best provider when one errors.
type Client struct {
	config    Config
	providers []*Provider
	mu        sync.RWMutex
}

func NewClient(config Config) (*Client, error) {
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if config.AccountSID == "" || config.AuthToken == "" || config.From == "" {
		return nil, errors.New("provider credentials are not configured")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.CircuitBreakerThreshold == 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout == 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}

	c := &Client{
		config:    config,
		providers: make([]*Provider, 0, len(config.Providers)),
	}
	for _, pc := range config.Providers {
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                config.Dial,
		}
		c.providers = append(c.providers, NewProvider(pc.Name, pc.URL, pc.Weight, httpClient))
		logger.Info("sms provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}

	return c, nil
}

// SelectBestProvider returns the available provider with the highest score.
func (c *Client) SelectBestProvider() (*Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Provider
	bestScore := -1.0
	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}
		if score := p.CalculateScore(); score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

func (c *Client) SendSMS(ctx context.Context, req SendRequest) (*SendResponse, error) {
	to := FormatPhone(req.To, c.config.CountryCode)
	if len(to) < 2 {
		return nil, fmt.Errorf("%w: invalid phone %q", ErrRejected, req.To)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.config.From)
	form.Set("Body", req.Body)
	body := []byte(form.Encode())

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		provider, err := c.SelectBestProvider()
		if err != nil {
			lastErr = err
			continue
		}

		started := time.Now()
		raw, err := c.doRequest(ctx, provider, body)
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
		if err != nil {
			provider.metrics.RecordFailure()
			c.checkCircuitBreaker(provider)
			logger.Warn("sms provider request failed", "provider", provider.name, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		latency := time.Since(started).Milliseconds()
		provider.metrics.RecordSuccess(latency)

		var resp SendResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		resp.Provider = provider.name

		logger.Info("sms sent", "message_id", req.MessageID, "sid", resp.SID, "status", resp.Status,
			"provider", provider.name, "latency_ms", latency)
		return &resp, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, provider *Provider, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.url + "/2010-04-01/Accounts/" + c.config.AccountSID + "/Messages.json")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set(fasthttp.HeaderAuthorization, "Basic "+basicAuth(c.config.AccountSID, c.config.AuthToken))
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return append([]byte(nil), resp.Body()...), nil
	case status >= 400 && status < 500 && status != fasthttp.StatusTooManyRequests:
		var perr providerError
		_ = json.Unmarshal(resp.Body(), &perr)
		return nil, fmt.Errorf("%w: status %d code %d: %s", ErrRejected, status, perr.Code, perr.Message)
	default:
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", status, resp.Body())
	}
}

func (c *Client) checkCircuitBreaker(provider *Provider) {
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails < int32(c.config.CircuitBreakerThreshold) {
		return
	}
	provider.SetState(StateCircuitOpen)
	provider.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).UnixNano())
	logger.Warn("circuit breaker opened", "provider", provider.name, "consecutive_fails", fails,
		"timeout", c.config.CircuitBreakerTimeout)
}

type ProviderStats struct {
	Name             string
	State            string
	Score            float64
	TotalRequests    int64
	FailedReqs       int64
	SuccessRate      float64
	AvgLatencyMs     int64
	ConsecutiveFails int32
}

// GetProviderStats returns the providers ordered by score.
func (c *Client) GetProviderStats() []ProviderStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ProviderStats, 0, len(c.providers))
	for _, p := range c.providers {
		stats = append(stats, ProviderStats{
			Name:             p.name,
			State:            p.GetState().String(),
			Score:            p.CalculateScore(),
			TotalRequests:    p.metrics.TotalRequests.Load(),
			FailedReqs:       p.metrics.FailedReqs.Load(),
			SuccessRate:      p.metrics.SuccessRate(),
			AvgLatencyMs:     p.metrics.AvgLatencyMs(),
			ConsecutiveFails: p.metrics.ConsecutiveFails.Load(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Score > stats[j].Score })
	return stats
}

func basicAuth(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}

// FormatPhone strips everything but digits and prefixes "+" and the country
// code when the number does not already start with it.
func FormatPhone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return "+" + digits
}
