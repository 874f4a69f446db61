package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StubGateway is an in-memory gateway for tests and local runs. Intents are
// created in requires_action and settle via SetStatus (tests) or
// AutoSucceed (local development, PAYMENT_GATEWAY=stub).
type StubGateway struct {
	mu          sync.Mutex
	intents     map[string]*Intent
	autoSucceed bool
}

func NewStubGateway() *StubGateway {
	return &StubGateway{intents: make(map[string]*Intent)}
}

// AutoSucceed makes every created intent immediately succeeded.
func (g *StubGateway) AutoSucceed() *StubGateway {
	g.autoSucceed = true
	return g
}

func (g *StubGateway) CreateIntent(_ context.Context, amount int64, currency string, _ map[string]string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := "pi_stub_" + uuid.NewString()
	status := StatusRequiresAction
	if g.autoSucceed {
		status = StatusSucceeded
	}

	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       amount,
		Currency:     currency,
		Status:       status,
	}
	g.intents[id] = intent

	copied := *intent
	return &copied, nil
}

func (g *StubGateway) Retrieve(_ context.Context, intentID string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}

	copied := *intent
	return &copied, nil
}

// SetStatus moves an existing intent to the given status.
func (g *StubGateway) SetStatus(intentID string, status IntentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}

	intent.Status = status
	return nil
}

// Seed registers a pre-existing intent, as if created by a previous session.
func (g *StubGateway) Seed(intent Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intent.ID] = &intent
}
