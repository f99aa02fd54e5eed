// Package client is the AI Action Ledger Go SDK.
//
// It provides everything an agent developer needs to produce tamper-evident
// audit trails: submitting hashed action summaries, verifying an agent's
// chain, and listing stored events. Raw prompts, completions, and tool
// payloads are hashed locally and never leave the process.
//
// # Logging an event
//
//	c, err := client.New("http://localhost:8080", os.Getenv("AAL_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	event, err := c.LogEvent(ctx, client.EventSubmission{
//	    AgentID:    "support-bot",
//	    ActionType: "llm_call",
//	    InputHash:  client.HashContent(prompt),
//	    OutputHash: client.HashContent(completion),
//	})
//	fmt.Println(event.SequenceNumber, event.LinkHash)
//
// Events with no output yet (e.g. llm_start) leave OutputHash empty; the
// ledger stores the all-zero sentinel digest.
//
// # Verifying a chain
//
//	res, err := c.VerifyChain(ctx, "support-bot")
//	if !res.IsValid {
//	    log.Printf("chain broken at sequence %d", *res.FirstInvalidSequence)
//	}
//
// # Higher-level logging
//
// Most applications should not call LogEvent directly. The actionlog package
// wraps this client with per-agent defaults, local hashing of raw payloads,
// and an injectable error policy; the langchain and openailog packages adapt
// framework callbacks onto it.
package client
