package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type PurchasePayload struct {
	Phone    string  `json:"phone"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
}

type RedemptionPayload struct {
	Phone  string  `json:"phone"`
	Amount float64 `json:"amount"`
}

type customerBody struct {
	TotalCashback     string `json:"total_cashback"`
	AvailableCashback string `json:"available_cashback"`
	UsedCashback      string `json:"used_cashback"`
}

type LoadTestConfig struct {
	BaseURL           string
	RequestsPerSecond int
	DurationSeconds   int
	ConcurrentWorkers int
	Phones            int
	Category          string
	RedeemEvery       int
}

type Stats struct {
	successCount  atomic.Int64
	rejectedCount atomic.Int64
	errorCount    atomic.Int64
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]float64, len(s.responseTimes))
	copy(times, s.responseTimes)
	return times
}

type job struct {
	path    string
	payload []byte
}

func sendRequest(client *http.Client, url string, payload []byte, stats *Stats) {
	start := time.Now()

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	stats.addResponseTime(time.Since(start).Seconds())
	if err != nil {
		stats.errorCount.Add(1)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusCreated:
		stats.successCount.Add(1)
	// validation and insufficient balance are expected under load
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		stats.rejectedCount.Add(1)
	default:
		stats.errorCount.Add(1)
	}
}

func worker(client *http.Client, config LoadTestConfig, stats *Stats, jobs <-chan job, wg *sync.WaitGroup) {
	defer wg.Done()

	for j := range jobs {
		sendRequest(client, config.BaseURL+j.path, j.payload, stats)
	}
}

func phone(i int) string {
	return fmt.Sprintf("11%09d", i)
}

func nextJob(config LoadTestConfig, n int) job {
	p := phone(n % config.Phones)
	if config.RedeemEvery > 0 && n%config.RedeemEvery == config.RedeemEvery-1 {
		body, _ := json.Marshal(RedemptionPayload{Phone: p, Amount: 15})
		return job{path: "/redemptions", payload: body}
	}
	body, _ := json.Marshal(PurchasePayload{
		Phone:    p,
		Name:     "Load " + p,
		Amount:   float64(50 + n%250),
		Category: config.Category,
	})
	return job{path: "/purchases", payload: body}
}

// verifyBalances checks that every customer touched by the run still has
// total = available + used.
func verifyBalances(client *http.Client, config LoadTestConfig) int {
	broken := 0
	for i := 0; i < config.Phones; i++ {
		resp, err := client.Get(config.BaseURL + "/customers/" + phone(i))
		if err != nil {
			broken++
			continue
		}
		var c customerBody
		err = json.NewDecoder(resp.Body).Decode(&c)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			continue
		}
		if err != nil {
			broken++
			continue
		}
		total, _ := strconv.ParseFloat(c.TotalCashback, 64)
		available, _ := strconv.ParseFloat(c.AvailableCashback, 64)
		used, _ := strconv.ParseFloat(c.UsedCashback, 64)
		if math.Abs(total-available-used) > 0.001 {
			fmt.Printf("balance mismatch for %s: total=%s available=%s used=%s\n",
				phone(i), c.TotalCashback, c.AvailableCashback, c.UsedCashback)
			broken++
		}
	}
	return broken
}

func calculatePercentile(sorted []float64, percentile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func main() {
	config := LoadTestConfig{
		BaseURL:           strings.TrimRight(getEnvOrDefault("TARGET_URL", "http://localhost:8080/api/v1"), "/"),
		RequestsPerSecond: getEnvIntOrDefault("REQUESTS_PER_SECOND", 500),
		DurationSeconds:   getEnvIntOrDefault("DURATION_SECONDS", 30),
		ConcurrentWorkers: getEnvIntOrDefault("CONCURRENT_WORKERS", 100),
		Phones:            getEnvIntOrDefault("PHONES", 50),
		Category:          getEnvOrDefault("CATEGORY", "acessorios"),
		RedeemEvery:       getEnvIntOrDefault("REDEEM_EVERY", 5),
	}
	if config.Phones < 1 {
		config.Phones = 1
	}

	fmt.Println("Starting load test...")
	fmt.Printf("Target: %s\n", config.BaseURL)
	fmt.Printf("Total requests: %d\n", config.RequestsPerSecond*config.DurationSeconds)
	fmt.Printf("Target RPS: %d\n", config.RequestsPerSecond)
	fmt.Printf("Concurrent workers: %d\n", config.ConcurrentWorkers)
	fmt.Printf("Phones: %d, redemption every %d requests\n", config.Phones, config.RedeemEvery)
	fmt.Println(strings.Repeat("-", 50))

	stats := &Stats{}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        config.ConcurrentWorkers,
			MaxIdleConnsPerHost: config.ConcurrentWorkers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	jobs := make(chan job, config.RequestsPerSecond)

	var wg sync.WaitGroup
	for i := 0; i < config.ConcurrentWorkers; i++ {
		wg.Add(1)
		go worker(client, config, stats, jobs, &wg)
	}

	startTime := time.Now()
	sent := 0

	for i := 0; i < config.DurationSeconds; i++ {
		batchStart := time.Now()

		for j := 0; j < config.RequestsPerSecond; j++ {
			jobs <- nextJob(config, sent)
			sent++
		}

		success := stats.successCount.Load()
		rejected := stats.rejectedCount.Load()
		errors := stats.errorCount.Load()
		fmt.Printf("[%ds] Completed: %d | Success: %d | Rejected: %d | Errors: %d\n",
			i+1, success+rejected+errors, success, rejected, errors)

		if elapsed := time.Since(batchStart); elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}

	close(jobs)
	wg.Wait()

	duration := time.Since(startTime).Seconds()

	success := stats.successCount.Load()
	rejected := stats.rejectedCount.Load()
	errors := stats.errorCount.Load()
	total := success + rejected + errors

	times := stats.getResponseTimes()
	sort.Float64s(times)
	var avg float64
	for _, t := range times {
		avg += t
	}
	if len(times) > 0 {
		avg /= float64(len(times))
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Successful: %d\n", success)
	fmt.Printf("Rejected (400/409): %d\n", rejected)
	fmt.Printf("Failed: %d\n", errors)
	fmt.Printf("\nActual RPS: %.2f\n", float64(total)/duration)
	fmt.Printf("\nResponse times:\n")
	fmt.Printf("  Average: %.2f ms\n", avg*1000)
	fmt.Printf("  P50: %.2f ms\n", calculatePercentile(times, 0.50)*1000)
	fmt.Printf("  P95: %.2f ms\n", calculatePercentile(times, 0.95)*1000)
	fmt.Printf("  P99: %.2f ms\n", calculatePercentile(times, 0.99)*1000)
	if len(times) > 0 {
		fmt.Printf("  Min: %.2f ms\n", times[0]*1000)
		fmt.Printf("  Max: %.2f ms\n", times[len(times)-1]*1000)
	}

	broken := verifyBalances(client, config)
	fmt.Printf("\nBalance check: %d of %d customers inconsistent\n", broken, config.Phones)
	if broken > 0 || errors > 0 {
		os.Exit(1)
	}
}
