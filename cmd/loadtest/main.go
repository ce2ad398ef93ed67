// cmd/loadtest/main.go
package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/pflag"

	"github.com/cmatc13/merchantpay/internal/cardano"
	"github.com/cmatc13/merchantpay/internal/payment"
)

// Command line flags
var (
	duration    = pflag.Duration("duration", 1*time.Minute, "Test duration")
	numWallets  = pflag.Int("wallets", 100, "Number of wallet keys to sign with")
	concurrency = pflag.Int("concurrency", 20, "Number of concurrent clients")
	requestRate = pflag.Float64("rate", 100, "Target submissions per second")
	target      = pflag.String("target", "http://localhost:8080", "Base URL of the merchantpay API")
	timeout     = pflag.Duration("timeout", 35*time.Second, "Per-request timeout")
)

// Statistics
type Stats struct {
	successCount  uint64
	rejectedCount uint64
	errorCount    uint64
	latencySum    uint64
	latencyCount  uint64
}

func main() {
	pflag.Parse()

	if *numWallets < 1 || *concurrency < 1 || *requestRate <= 0 {
		log.Fatalf("wallets and concurrency must be positive and rate above zero")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	fmt.Printf("Generating %d wallet keys...\n", *numWallets)
	wallets, err := generateWallets(*numWallets)
	if err != nil {
		log.Fatalf("Failed to generate wallets: %v", err)
	}

	endpoint := *target + "/api/v1/payments/submit"
	client := &http.Client{Timeout: *timeout}

	fmt.Printf("Starting load test against %s\n", endpoint)
	fmt.Printf("  Duration: %s, Concurrency: %d, Target rate: %.0f/s\n", *duration, *concurrency, *requestRate)

	stats := &Stats{}
	testCtx, testCancel := context.WithCancel(ctx)
	testTimer := time.NewTimer(*duration)
	defer testTimer.Stop()

	var wg sync.WaitGroup

	// Token channel fed at the target rate
	interval := time.Duration(float64(time.Second) / *requestRate)
	rateLimiter := make(chan struct{}, *concurrency)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-testCtx.Done():
				return
			case <-ticker.C:
				select {
				case rateLimiter <- struct{}{}:
				default:
					// Workers are saturated, drop the token
				}
			}
		}
	}()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go worker(testCtx, i, client, endpoint, wallets, rateLimiter, stats, &wg)
	}

	startTime := time.Now()
	go report(testCtx, stats, startTime)

	select {
	case <-testTimer.C:
		fmt.Println("\nTest duration reached")
	case <-ctx.Done():
		fmt.Println("\nTest interrupted")
	}

	testCancel()
	wg.Wait()

	printResults(stats, time.Since(startTime))
}

// report prints a one-line progress summary every second.
func report(ctx context.Context, stats *Stats, startTime time.Time) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastTotal uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			success := atomic.LoadUint64(&stats.successCount)
			rejected := atomic.LoadUint64(&stats.rejectedCount)
			failed := atomic.LoadUint64(&stats.errorCount)
			total := success + rejected + failed

			elapsed := time.Since(startTime).Seconds()
			fmt.Printf("\rRPS: %.2f (Current: %d), Success: %d, Rejected: %d, Errors: %d, Avg Latency: %d ms",
				float64(total)/elapsed, total-lastTotal, success, rejected, failed, averageLatency(stats))
			lastTotal = total
		}
	}
}

func averageLatency(stats *Stats) uint64 {
	count := atomic.LoadUint64(&stats.latencyCount)
	if count == 0 {
		return 0
	}
	return atomic.LoadUint64(&stats.latencySum) / count
}

func printResults(stats *Stats, elapsed time.Duration) {
	success := atomic.LoadUint64(&stats.successCount)
	rejected := atomic.LoadUint64(&stats.rejectedCount)
	failed := atomic.LoadUint64(&stats.errorCount)
	total := success + rejected + failed

	percent := func(n uint64) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) / float64(total) * 100
	}

	fmt.Printf("\n\nLoad Test Results:\n")
	fmt.Printf("  Test Duration: %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("  Total Submissions: %d\n", total)
	fmt.Printf("  Accepted: %d (%.2f%%)\n", success, percent(success))
	fmt.Printf("  Rejected: %d (%.2f%%)\n", rejected, percent(rejected))
	fmt.Printf("  Transport Errors: %d (%.2f%%)\n", failed, percent(failed))
	fmt.Printf("  Average RPS: %.2f\n", float64(total)/elapsed.Seconds())
	fmt.Printf("  Average Latency: %d ms\n", averageLatency(stats))
}

// worker submits one payment per rate limiter token.
func worker(
	ctx context.Context,
	id int,
	client *http.Client,
	endpoint string,
	wallets []ed25519.PrivateKey,
	rateLimiter <-chan struct{},
	stats *Stats,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-rateLimiter:
			wallet := wallets[(id+n)%len(wallets)]

			req, err := buildRequest(wallet)
			if err != nil {
				atomic.AddUint64(&stats.errorCount, 1)
				continue
			}

			startTime := time.Now()
			accepted, err := submit(ctx, client, endpoint, req)
			elapsed := time.Since(startTime).Milliseconds()

			switch {
			case err != nil:
				atomic.AddUint64(&stats.errorCount, 1)
			case accepted:
				atomic.AddUint64(&stats.successCount, 1)
				atomic.AddUint64(&stats.latencySum, uint64(elapsed))
				atomic.AddUint64(&stats.latencyCount, 1)
			default:
				atomic.AddUint64(&stats.rejectedCount, 1)
			}
		}
	}
}

// buildRequest creates a fresh transaction whose body hash is signed by
// wallet, packaged the way a browser wallet would hand it over.
func buildRequest(wallet ed25519.PrivateKey) (payment.SubmitRequest, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return payment.SubmitRequest{}, err
	}

	body := map[uint64]interface{}{
		0: nonce,
		2: uint64(170000),
	}
	tx, err := cbor.Marshal([]interface{}{body, map[uint64]interface{}{}, true, nil})
	if err != nil {
		return payment.SubmitRequest{}, err
	}

	txHash, err := cardano.TxBodyHash(tx)
	if err != nil {
		return payment.SubmitRequest{}, err
	}

	pub := wallet.Public().(ed25519.PublicKey)
	witnessSet, err := cardano.EncodeWitnessSet(
		cardano.NewVKeyWitness(pub, ed25519.Sign(wallet, txHash)),
	)
	if err != nil {
		return payment.SubmitRequest{}, err
	}

	return payment.SubmitRequest{
		TxCborHex:         hex.EncodeToString(tx),
		WitnessSetCborHex: hex.EncodeToString(witnessSet),
		TxHashHex:         hex.EncodeToString(txHash),
	}, nil
}

// submit posts req and reports whether the service accepted it. Rejections
// are not errors; only transport and decoding failures are.
func submit(ctx context.Context, client *http.Client, endpoint string, req payment.SubmitRequest) (bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return false, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var result payment.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	return result.Success, nil
}

// generateWallets generates the wallet keys that co-sign each submission
func generateWallets(count int) ([]ed25519.PrivateKey, error) {
	wallets := make([]ed25519.PrivateKey, count)
	for i := 0; i < count; i++ {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate wallet: %w", err)
		}
		wallets[i] = priv
	}
	return wallets, nil
}
