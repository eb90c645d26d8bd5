// Package a2a implements the remote agent port over the Agent-to-Agent
// protocol: capability discovery via agent cards and streaming task
// delegation over JSON-RPC.
package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
	"github.com/cenkalti/backoff/v4"

	"github.com/harmonium-ai/harmonium/internal/adapter/cardcache"
	"github.com/harmonium-ai/harmonium/internal/config"
	"github.com/harmonium-ai/harmonium/internal/domain/agent"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
	"github.com/harmonium-ai/harmonium/internal/fault"
	"github.com/harmonium-ai/harmonium/internal/port/remoteagent"
)

// Client implements remoteagent.Client. Discovery results are cached in the
// tiered card cache; transport failures during delegation are retried with
// exponential backoff up to the configured attempt budget.
type Client struct {
	cfg        config.Remote
	cache      *cardcache.Descriptors
	httpClient *http.Client
	log        *slog.Logger
	newBackoff func() backoff.BackOff

	mu      sync.Mutex
	clients map[string]*a2aclient.Client
}

// NewClient creates the A2A client adapter.
func NewClient(cfg config.Remote, cache *cardcache.Descriptors, log *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		cache:      cache,
		httpClient: &http.Client{Timeout: cfg.TaskDeadline},
		log:        log,
		clients:    make(map[string]*a2aclient.Client),
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.InitialBackoff
			b.MaxInterval = cfg.MaxBackoff
			b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
			return backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1)) //nolint:gosec // MaxAttempts validated >= 1
		},
	}
}

// Discover fetches the capability descriptor published at endpoint, serving
// from the card cache when fresh.
func (c *Client) Discover(ctx context.Context, endpoint string) (*agent.Descriptor, error) {
	if desc, ok := c.cache.Lookup(ctx, endpoint); ok {
		return desc, nil
	}

	card, err := agentcard.DefaultResolver.Resolve(ctx, endpoint)
	if err != nil {
		return nil, fault.Wrap(fault.KindRemoteUnavailable,
			fmt.Sprintf("discover agent at %s", endpoint), err)
	}

	desc := descriptorFromCard(endpoint, card)
	if err := c.cache.Store(ctx, endpoint, desc); err != nil {
		c.log.Warn("card cache store failed", "endpoint", endpoint, "error", err)
	}
	return desc, nil
}

// Send delegates t to the agent at endpoint. Partial updates stream through
// onUpdate in arrival order; the returned result carries the terminal status
// and accumulated artifacts. Exhausted retries map to REMOTE_UNAVAILABLE.
func (c *Client) Send(ctx context.Context, endpoint string, t *task.DelegationTask, onUpdate remoteagent.UpdateFunc) (*task.DelegationResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	client, err := c.clientFor(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TaskDeadline)
	defer cancel()

	acc := newAccumulator(t.ID)
	attempt := 0
	var permanent error
	op := func() error {
		attempt++
		if attempt > 1 {
			c.log.Info("retrying delegation", "task_id", t.ID, "endpoint", endpoint, "attempt", attempt)
			acc.nextAttempt()
		}
		err := c.stream(ctx, client, t, acc, onUpdate)
		if err != nil && !retryable(err) {
			permanent = err
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		if permanent != nil {
			return nil, permanent
		}
		return nil, fault.Wrap(fault.KindRemoteUnavailable,
			fmt.Sprintf("delegate task %s to %s after %d attempts", t.ID, endpoint, attempt), err)
	}

	return acc.result(), nil
}

// clientFor returns the cached protocol client for endpoint, creating it
// from the resolved agent card on first use.
func (c *Client) clientFor(ctx context.Context, endpoint string) (*a2aclient.Client, error) {
	c.mu.Lock()
	client, ok := c.clients[endpoint]
	c.mu.Unlock()
	if ok {
		return client, nil
	}

	card, err := agentcard.DefaultResolver.Resolve(ctx, endpoint)
	if err != nil {
		return nil, fault.Wrap(fault.KindRemoteUnavailable,
			fmt.Sprintf("resolve agent card at %s", endpoint), err)
	}

	client, err = a2aclient.NewFromCard(ctx, card, a2aclient.WithJSONRPCTransport(c.httpClient))
	if err != nil {
		return nil, fault.Wrap(fault.KindRemoteUnavailable,
			fmt.Sprintf("create client for %s", endpoint), err)
	}

	c.mu.Lock()
	c.clients[endpoint] = client
	c.mu.Unlock()
	return client, nil
}

// stream performs one delegation attempt, feeding every mapped update into
// the accumulator and the caller's callback.
func (c *Client) stream(ctx context.Context, client *a2aclient.Client, t *task.DelegationTask, acc *accumulator, onUpdate remoteagent.UpdateFunc) error {
	params := &a2a.MessageSendParams{
		Message: a2a.NewMessage(a2a.MessageRoleUser, &a2a.TextPart{Text: messageText(t)}),
	}

	for event, err := range client.SendStreamingMessage(ctx, params) {
		if err != nil {
			return fmt.Errorf("stream: %w", err)
		}
		update := mapEvent(event, acc)
		if update == nil {
			continue
		}
		if err := acc.apply(update); err != nil {
			return err
		}
		if onUpdate != nil {
			if err := onUpdate(*update); err != nil {
				return &callbackError{err: err}
			}
		}
	}
	return nil
}

// callbackError marks failures raised by the caller's update callback,
// which must never be retried.
type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return "update callback: " + e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

// retryable reports whether err is a transport-level failure worth another
// attempt. Callback rejections and accumulator errors are final.
func retryable(err error) bool {
	var cb *callbackError
	if errors.As(err, &cb) {
		return false
	}
	var acc *accumulatorError
	return !errors.As(err, &acc)
}

// messageText renders the delegation input. Filtered context travels inside
// the same text part as a fenced JSON block, so agents without structured
// part support still receive it.
func messageText(t *task.DelegationTask) string {
	var sb strings.Builder
	if t.Skill != "" {
		fmt.Fprintf(&sb, "[skill:%s] ", t.Skill)
	}
	sb.WriteString(t.Input)
	if len(t.FilteredContext) > 0 {
		data, err := json.Marshal(t.FilteredContext)
		if err == nil {
			sb.WriteString("\n\nContext:\n```json\n")
			sb.Write(data)
			sb.WriteString("\n```")
		}
	}
	return sb.String()
}

func descriptorFromCard(endpoint string, card *a2a.AgentCard) *agent.Descriptor {
	desc := &agent.Descriptor{
		Name:        card.Name,
		Description: card.Description,
		Endpoint:    endpoint,
		Version:     card.Version,
		InputModes:  card.DefaultInputModes,
		OutputModes: card.DefaultOutputModes,
		Streaming:   card.Capabilities.Streaming,
	}
	for _, skill := range card.Skills {
		desc.Skills = append(desc.Skills, agent.Skill{
			ID:          skill.ID,
			Name:        skill.Name,
			Description: skill.Description,
		})
	}
	return desc
}
