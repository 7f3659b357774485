// Package cache keeps approval configuration in memory and refreshes it
// on PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docflow/internal/core/id"
	"docflow/internal/domain/approval"
	"docflow/pkg/logger"
)

// RulesChangedChannel is notified by triggers on approval_rules and approval_levels.
const RulesChangedChannel = "approval_rules_changed"

// RuleLoader reads the full approval configuration.
type RuleLoader interface {
	AllRules(ctx context.Context) ([]approval.Rule, error)
	AllLevels(ctx context.Context) ([]approval.Level, error)
}

// InvalidationListener is called after every reload triggered by a notification.
type InvalidationListener func(channel string, payload string)

// RuleCache implements approval.RuleSource from an in-memory snapshot.
type RuleCache struct {
	loader RuleLoader
	pool   *pgxpool.Pool

	mu     sync.RWMutex
	rules  map[string][]approval.Rule // document type -> rules
	levels map[id.ID]approval.Level
	loaded time.Time

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ approval.RuleSource = (*RuleCache)(nil)

// NewRuleCache builds a cache. With a nil pool the cache only reloads on
// explicit Reload calls.
func NewRuleCache(loader RuleLoader, pool *pgxpool.Pool) *RuleCache {
	return &RuleCache{
		loader: loader,
		pool:   pool,
		rules:  make(map[string][]approval.Rule),
		levels: make(map[id.ID]approval.Level),
	}
}

// Start loads the configuration and begins listening for changes.
func (c *RuleCache) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	if c.started {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	c.lifecycleMu.Unlock()

	if err := c.Reload(c.ctx); err != nil {
		c.Stop()
		return fmt.Errorf("load approval rules: %w", err)
	}

	if c.pool != nil {
		c.wg.Add(1)
		go c.listenLoop()
	}
	logger.Info(c.ctx, "approval rule cache started")
	return nil
}

// Stop ends the listener and waits for it to exit.
func (c *RuleCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "approval rule cache stopped")
}

// Reload replaces the snapshot and reports ambiguous rule pairs.
func (c *RuleCache) Reload(ctx context.Context) error {
	rules, err := c.loader.AllRules(ctx)
	if err != nil {
		return fmt.Errorf("query rules: %w", err)
	}
	levels, err := c.loader.AllLevels(ctx)
	if err != nil {
		return fmt.Errorf("query levels: %w", err)
	}

	byType := make(map[string][]approval.Rule)
	for _, r := range rules {
		byType[r.DocumentType] = append(byType[r.DocumentType], r)
	}
	for _, list := range byType {
		sort.Slice(list, func(i, j int) bool { return id.Compare(list[i].ID, list[j].ID) < 0 })
	}
	levelMap := make(map[id.ID]approval.Level, len(levels))
	for _, l := range levels {
		levelMap[l.ID] = l
	}

	c.mu.Lock()
	c.rules = byType
	c.levels = levelMap
	c.loaded = time.Now()
	c.mu.Unlock()

	for _, amb := range approval.DetectAmbiguity(rules) {
		logger.Warn(ctx, "ambiguous approval rules", "document_type", amb.DocumentType,
			"first", amb.First, "second", amb.Second)
	}
	logger.Info(ctx, "loaded approval rules", "rules", len(rules), "levels", len(levels))
	return nil
}

func (c *RuleCache) RulesFor(_ context.Context, documentType string) ([]approval.Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]approval.Rule(nil), c.rules[documentType]...), nil
}

func (c *RuleCache) Levels(_ context.Context, levelIDs []id.ID) (map[id.ID]approval.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[id.ID]approval.Level, len(levelIDs))
	for _, lid := range levelIDs {
		if l, ok := c.levels[lid]; ok {
			out[lid] = l
		}
	}
	return out, nil
}

// OnInvalidation registers a callback run after each notification.
func (c *RuleCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

func (c *RuleCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+RulesChangedChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}
		logger.Info(c.ctx, "listening for approval rule changes")

		// Changes made while no listener was attached would otherwise be missed.
		if err := c.Reload(c.ctx); err != nil {
			logger.Error(c.ctx, "failed to reload approval rules", "error", err)
		}

		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *RuleCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				continue // timeout
			}
			logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
			return
		}

		logger.Debug(c.ctx, "received notification", "channel", notification.Channel, "payload", notification.Payload)
		c.handleNotification(notification.Channel, notification.Payload)
	}
}

func (c *RuleCache) handleNotification(channel, payload string) {
	if err := c.Reload(c.ctx); err != nil {
		logger.Error(c.ctx, "failed to reload approval rules", "error", err)
	}

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(c.ctx, "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			l(channel, payload)
		}(listener)
	}
}

// Stats describes the current snapshot.
type Stats struct {
	DocumentTypes int       `json:"document_types"`
	Rules         int       `json:"rules"`
	Levels        int       `json:"levels"`
	LoadedAt      time.Time `json:"loaded_at"`
}

func (c *RuleCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.rules {
		n += len(list)
	}
	return Stats{DocumentTypes: len(c.rules), Rules: n, Levels: len(c.levels), LoadedAt: c.loaded}
}
