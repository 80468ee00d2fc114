package ruleengine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamrelay/platform/pkg/broker"
	"github.com/streamrelay/platform/pkg/metrics"
)

// readBlock and readCount are the blocking multi-stream read parameters
// (spec §4.3 step 3: "block ≈ 2s, count ≈ 10").
const (
	readBlock = 2 * time.Second
	readCount = 10
)

// RuleFetcher fetches active rules matching a tenant+event_kind. Implemented
// by Store.ActiveRulesFor.
type RuleFetcher interface {
	ActiveRulesFor(ctx context.Context, tenant, kind string) ([]*Rule, error)
}

// StreamReader is the subset of broker.Broker the Consumer depends on.
type StreamReader interface {
	ReadBatch(ctx context.Context, cursors map[string]string, count int64, block time.Duration) ([]broker.Message, error)
}

// Consumer is the single logical subscriber described in spec §4.3: it
// discovers active tenants, reads their streams with per-tenant cursors,
// evaluates rules, and hands matches to the Action Executor. Its run loop
// shape is grounded on the teacher's pkg/queue/worker.go (stopCh, WaitGroup,
// structured per-run logger).
type Consumer struct {
	discoverer *discoverer
	reader     StreamReader
	rules      RuleFetcher
	executor   *Executor

	giftBridge *GiftBridge

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer wires a Consumer to its collaborators.
func NewConsumer(tenants TenantSource, reader StreamReader, rules RuleFetcher, executor *Executor) *Consumer {
	return &Consumer{
		discoverer: newDiscoverer(tenants),
		reader:     reader,
		rules:      rules,
		executor:   executor,
		stopCh:     make(chan struct{}),
	}
}

// SetGiftBridge wires the optional secondary-worker bridge (spec §6, §9).
// Unset by default: the core pipeline has no dependency on it.
func (c *Consumer) SetGiftBridge(b *GiftBridge) {
	c.giftBridge = b
}

// SetShard restricts this consumer to a subset of tenants, for horizontal
// scaling across multiple processes (spec §5: "horizontally shardable by
// tenant key"). count <= 1 disables sharding.
func (c *Consumer) SetShard(index, count int) {
	c.discoverer.setShard(index, count)
}

// Start runs the consumer loop in its own goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the loop to exit and waits for it; bounded by the next
// block-read boundary (spec §5: "bounded by the block duration").
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()
	log := slog.With("component", "rule_consumer")
	log.Info("rule consumer started")

	for {
		select {
		case <-c.stopCh:
			log.Info("rule consumer stopping")
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := c.tick(ctx, log); err != nil {
			// spec §7 fatal_consumer: log, back off (~1s), retry indefinitely.
			log.Error("rule consumer tick failed", "error", err)
			select {
			case <-c.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) tick(ctx context.Context, log *slog.Logger) error {
	cursors, err := c.discoverer.streams(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(cursors) == 0 {
		select {
		case <-c.stopCh:
		case <-time.After(readBlock):
		}
		return nil
	}

	msgs, err := c.reader.ReadBatch(ctx, cursors, readCount, readBlock)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		c.processMessage(ctx, log, msg)
		c.discoverer.advance(msg.Stream, msg.ID)
	}
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, log *slog.Logger, msg broker.Message) {
	tenant := tenantFromStreamKey(msg.Stream)
	kind := msg.Fields["event_kind"]
	ev := Event{ID: msg.ID, Tenant: tenant, Kind: kind, Fields: msg.Fields}
	metrics.EventsConsumedTotal.WithLabelValues(tenant).Inc()

	if kind == "gift" {
		c.giftBridge.Forward(ctx, log, ev)
	}

	rules, err := c.rules.ActiveRulesFor(ctx, tenant, kind)
	if err != nil {
		// spec §4.7: errors at fetched_rules drop the event (log + continue).
		log.Error("failed to fetch active rules", "tenant", tenant, "event_kind", kind, "error", err)
		return
	}

	for _, rule := range rules {
		c.evaluateRule(ctx, log, *rule, ev)
	}
}

// evaluateRule evaluates one rule against ev and, on match, hands off to the
// executor. Panics and errors from a single rule never halt its siblings
// (spec §4.3 "catch and log per-rule exceptions; never let one rule's error
// halt others").
func (c *Consumer) evaluateRule(ctx context.Context, log *slog.Logger, rule Rule, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("rule evaluation panicked", "rule_id", rule.ID, "panic", r)
		}
	}()

	if !Matches(rule, ev) {
		return
	}
	metrics.RulesMatchedTotal.WithLabelValues(ev.Tenant).Inc()
	c.executor.Execute(ctx, rule, ev)
}
