//go:build ignore

// loadgen.go floods a running ledger service with concurrent event
// submissions across many agents, then verifies every chain. Useful for
// checking that per-agent serialization holds up under cross-agent load.
//
// Run with: go run scripts/loadgen.go
//
//	LEDGER_URL=http://localhost:8080 LEDGER_API_KEY=dev-key go run scripts/loadgen.go
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jmerrifield20/ActionLedger/pkg/client"
)

const (
	numAgents      = 20
	eventsPerAgent = 50
	workers        = 16
)

var actionTypes = []string{"llm_start", "llm_end", "tool_start", "tool_end", "chain_start", "chain_end"}

func main() {
	ledgerURL := os.Getenv("LEDGER_URL")
	if ledgerURL == "" {
		ledgerURL = "http://localhost:8080"
	}
	apiKey := os.Getenv("LEDGER_API_KEY")

	c, err := client.New(ledgerURL, apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := c.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: ledger unreachable at %s: %v\n", ledgerURL, err)
		os.Exit(1)
	}

	type job struct {
		agentID string
		i       int
	}

	total := numAgents * eventsPerAgent
	jobs := make(chan job, total)
	errs := make(chan error, total)

	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				_, err := c.LogEvent(ctx, client.EventSubmission{
					AgentID:    j.agentID,
					ActionType: actionTypes[j.i%len(actionTypes)],
					InputHash:  client.HashContent(fmt.Sprintf("%s input %d", j.agentID, j.i)),
					OutputHash: client.HashContent(fmt.Sprintf("%s output %d", j.agentID, j.i)),
				})
				errs <- err
			}
		}()
	}

	for a := 0; a < numAgents; a++ {
		agentID := fmt.Sprintf("loadgen-agent-%02d", a)
		for i := 0; i < eventsPerAgent; i++ {
			jobs <- job{agentID: agentID, i: i}
		}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(errs)
	}()

	sent := 0
	failed := 0
	for err := range errs {
		sent++
		if err != nil {
			failed++
		}
		fmt.Printf("\r  appending... %d/%d", sent, total)
	}
	elapsed := time.Since(start)
	fmt.Printf("\r  done — %d events in %s (%.0f/s), %d failed\n\n",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds(), failed)

	// Verify every chain end to end.
	invalid := 0
	for a := 0; a < numAgents; a++ {
		agentID := fmt.Sprintf("loadgen-agent-%02d", a)
		res, err := c.VerifyChain(ctx, agentID)
		if err != nil {
			fmt.Printf("  verify %s: %v\n", agentID, err)
			invalid++
			continue
		}
		if !res.IsValid {
			fmt.Printf("  verify %s: INVALID at seq %v\n", agentID, res.FirstInvalidSequence)
			invalid++
		}
	}

	if invalid == 0 {
		fmt.Printf("all %d chains valid\n", numAgents)
		return
	}
	fmt.Printf("%d chain(s) invalid\n", invalid)
	os.Exit(1)
}
