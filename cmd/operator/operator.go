package main

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MessageResource mirrors the fields of a Twilio message resource the
// gateway reads back.
type MessageResource struct {
	SID         string    `json:"sid"`
	AccountSID  string    `json:"account_sid"`
	To          string    `json:"to"`
	From        string    `json:"from"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"date_created"`
}

type ErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info,omitempty"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	OperatorID   string    `json:"operator_id"`
	Timestamp    time.Time `json:"timestamp"`
	DeliveryRate float64   `json:"delivery_rate"`
	Sent         int       `json:"sent"`
}

// MockOperator simulates an SMS provider speaking the Twilio Messages API.
type MockOperator struct {
	mu           sync.Mutex
	accountSID   string
	authToken    string
	deliveryRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	operatorID   string
	rng          *rand.Rand
	sent         []MessageResource
}

func NewMockOperator(accountSID, authToken string, deliveryRate float64, minDelay, maxDelay time.Duration) *MockOperator {
	return &MockOperator{
		accountSID:   accountSID,
		authToken:    authToken,
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		operatorID:   "MOCK_OPERATOR_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockOperator) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockOperator) shouldSucceed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.deliveryRate
}

func (m *MockOperator) record(msg MessageResource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *MockOperator) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type Handler struct {
	operator *MockOperator
}

func NewHandler(operator *MockOperator) *Handler {
	return &Handler{operator: operator}
}

// CreateMessage handles POST /2010-04-01/Accounts/:sid/Messages.json.
// Invalid numbers are rejected with 400, simulated outages answer 503.
func (h *Handler) CreateMessage(c *gin.Context) {
	sid := c.Param("sid")
	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != h.operator.accountSID || pass != h.operator.authToken || sid != h.operator.accountSID {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Code: 20003, Message: "Authenticate", Status: http.StatusUnauthorized})
		return
	}

	to := c.PostForm("To")
	from := c.PostForm("From")
	body := c.PostForm("Body")
	if body == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 21602, Message: "Message body is required.", Status: http.StatusBadRequest})
		return
	}
	if !strings.HasPrefix(to, "+") || len(to) < 8 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 21211, Message: "The 'To' number " + to + " is not a valid phone number.", Status: http.StatusBadRequest})
		return
	}

	time.Sleep(h.operator.randomDelay())

	if !h.operator.shouldSucceed() {
		log.Warn().Str("to", to).Msg("simulated provider outage")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: 20503, Message: "Service unavailable", Status: http.StatusServiceUnavailable})
		return
	}

	msg := MessageResource{
		SID:         "SM" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		AccountSID:  sid,
		To:          to,
		From:        from,
		Body:        body,
		Status:      "queued",
		DateCreated: time.Now().UTC(),
	}
	h.operator.record(msg)

	log.Info().
		Str("sid", msg.SID).
		Str("to", to).
		Msg("SMS accepted")

	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.operator.mu.Lock()
	rate := h.operator.deliveryRate
	h.operator.mu.Unlock()

	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		OperatorID:   h.operator.operatorID,
		Timestamp:    time.Now(),
		DeliveryRate: rate,
		Sent:         h.operator.sentCount(),
	})
}

// UpdateConfig allows changing the delivery rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.operator.mu.Lock()
	if config.DeliveryRate != nil && *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
		h.operator.deliveryRate = *config.DeliveryRate
		log.Info().Float64("rate", *config.DeliveryRate).Msg("Updated delivery rate")
	}
	rate := h.operator.deliveryRate
	h.operator.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"delivery_rate": rate})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	router.POST("/2010-04-01/Accounts/:sid/Messages.json", handler.CreateMessage)
	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}
