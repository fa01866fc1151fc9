package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	mW "github.com/havenstay/backend/internal/middleware"
)

var (
	targetURL   string
	secret      string
	concurrency int
	duration    time.Duration
	workload    string
	bookings    int
)

// counters
var (
	totalRequests uint64
	success200    uint64
	conflict409   uint64 // version conflicts and already-reviewed payments
	retryAfter    uint64 // 409s that asked the client to retry
	failOther     uint64
	approvals     uint64
	rejections    uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.StringVar(&secret, "secret", os.Getenv("JWT_SECRET_KEY"), "JWT signing secret of the target server")
	flag.IntVar(&concurrency, "workers", 10, "number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "test duration")
	flag.StringVar(&workload, "workload", "hotspot", "workload type: uniform | hotspot")
	flag.IntVar(&bookings, "bookings", 1000, "number of seeded bookings")
}

func main() {
	flag.Parse()
	if secret == "" {
		log.Fatal("missing -secret (or JWT_SECRET_KEY)")
	}
	log.Printf("Starting benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	staff := make([]string, concurrency)
	for i := range staff {
		token, err := mW.IssueToken(secret, mW.Identity{UserID: fmt.Sprintf("bench-staff-%d", i), Role: mW.RoleStaff}, duration+time.Minute)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		staff[i] = token
	}
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, staff[i])
	}
	wg.Wait()

	printResults(time.Since(start))
}

// worker reopens a booking with a fresh submission, then races the other
// workers to adjudicate it.
func worker(wg *sync.WaitGroup, start time.Time, staffToken string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		id := pickBooking()
		guestToken, err := mW.IssueToken(secret, mW.Identity{UserID: "bench-guest-" + id, Role: mW.RoleGuest, BookingID: id}, time.Minute)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}

		submit := map[string]any{
			"claimed_amount":  "500.00",
			"proof_reference": "bench/" + uuid.NewString(),
		}
		send(client, "/api/v1/bookings/"+id+"/payments", guestToken, submit)

		if rand.IntN(2) == 0 {
			if send(client, "/api/v1/admin/payments/"+id+"/approve", staffToken, map[string]any{}) == http.StatusOK {
				atomic.AddUint64(&approvals, 1)
			}
		} else {
			if send(client, "/api/v1/admin/payments/"+id+"/reject", staffToken, map[string]any{"reason": "benchmark"}) == http.StatusOK {
				atomic.AddUint64(&rejections, 1)
			}
		}
	}
}

func send(client *http.Client, path, token string, payload map[string]any) int {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, targetURL+path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	atomic.AddUint64(&totalRequests, 1)
	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddUint64(&success200, 1)
	case http.StatusConflict:
		atomic.AddUint64(&conflict409, 1)
		if resp.Header.Get("Retry-After") != "" {
			atomic.AddUint64(&retryAfter, 1)
		}
	default:
		atomic.AddUint64(&failOther, 1)
	}
	return resp.StatusCode
}

func pickBooking() string {
	// Hotspot: 90% of traffic goes to the first two bookings
	if workload == "hotspot" && rand.Float32() < 0.90 {
		return fmt.Sprintf("BK-%06d", rand.IntN(2)+1)
	}
	return fmt.Sprintf("BK-%06d", rand.IntN(bookings)+1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	c409 := atomic.LoadUint64(&conflict409)

	abortRate := 0.0
	if total > 0 {
		abortRate = float64(c409) / float64(total) * 100
	}

	results := map[string]any{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_rps":    float64(total) / d.Seconds(),
		"success":           atomic.LoadUint64(&success200),
		"approvals":         atomic.LoadUint64(&approvals),
		"rejections":        atomic.LoadUint64(&rejections),
		"conflicts":         c409,
		"conflicts_retried": atomic.LoadUint64(&retryAfter),
		"conflict_rate_pct": abortRate,
		"errors":            atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
