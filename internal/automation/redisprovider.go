package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"skipper/internal/logging"
)

// Protocol constants for the worker fleet.
const (
	fleetPrefix = "skipperfleet:"
	workersSet  = fleetPrefix + "workers"

	defaultRPCWait  = 60 * time.Second
	extractRPCWait  = 120 * time.Second
	releaseRPCWait  = 30 * time.Second
	liveViewRPCWait = 10 * time.Second
)

// RedisProvider implements Provider over a Redis-queued browser worker fleet.
// Commands are RPUSHed onto the owning worker's task list; workers reply on a
// per-task result key consumed with BLPOP.
type RedisProvider struct {
	rdb    *redis.Client
	apiKey string
	logger logging.Logger
}

// NewRedisProvider connects the provider transport. apiKey authenticates this
// process to the fleet and is required; missing credentials are a
// configuration error the caller fails fast on.
func NewRedisProvider(redisURL, apiKey string) (*RedisProvider, error) {
	if apiKey == "" {
		return nil, errors.New("provider api key is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider redis url: %w", err)
	}
	return &RedisProvider{
		rdb:    redis.NewClient(opt),
		apiKey: apiKey,
		logger: logging.NewComponentLogger("RedisProvider"),
	}, nil
}

// Close releases the transport connection pool.
func (p *RedisProvider) Close() error {
	return p.rdb.Close()
}

type taskPayload struct {
	TaskID    string         `json:"task_id"`
	BrowserID string         `json:"browser_id"`
	Worker    string         `json:"worker_name"`
	Action    string         `json:"action"`
	Args      map[string]any `json:"args,omitempty"`
	ResultKey string         `json:"result_key"`
	APIKey    string         `json:"api_key,omitempty"`
}

type taskResponse struct {
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Value     string          `json:"value,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	DebugURL  string          `json:"debug_url,omitempty"`
}

// CreateSession claims a free browser from a random worker and initializes a
// remote context on it. The worker decides the final session id: a resume
// request for an expired context comes back with a fresh id, so callers must
// read Session.ID() rather than trusting opts.SessionID.
func (p *RedisProvider) CreateSession(ctx context.Context, opts SessionOptions) (Session, error) {
	workers, err := p.rdb.SMembers(ctx, workersSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	rand.Shuffle(len(workers), func(i, j int) { workers[i], workers[j] = workers[j], workers[i] })

	for _, worker := range workers {
		freeKey := fmt.Sprintf("%s%s:free", fleetPrefix, worker)
		browserID, err := p.rdb.SPop(ctx, freeKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		} else if err != nil {
			p.logger.Warn("claim browser on %s failed: %v", worker, err)
			continue
		}

		sess := &redisSession{
			provider:  p,
			worker:    worker,
			browserID: browserID,
		}

		resp, err := sess.send(ctx, "init_session", map[string]any{
			"session_id":  opts.SessionID,
			"geolocation": opts.Geolocation,
			"model":       opts.Model,
		}, defaultRPCWait)
		if err != nil {
			// Hand the browser back so the fleet does not leak capacity.
			p.rdb.SAdd(ctx, freeKey, browserID)
			return nil, fmt.Errorf("init session on %s: %w", worker, err)
		}

		sess.id = resp.SessionID
		if sess.id == "" {
			sess.id = fmt.Sprintf("sess-%s", uuid.New().String())
		}
		sess.debugURL = resp.DebugURL
		p.logger.Info("session %s created on worker %s (requested reuse of %q)",
			sess.id, worker, opts.SessionID)
		return sess, nil
	}

	return nil, ErrNoWorkers
}

type redisSession struct {
	provider  *RedisProvider
	worker    string
	browserID string
	id        string
	debugURL  string
	closed    bool
}

func (s *redisSession) send(ctx context.Context, action string, args map[string]any, wait time.Duration) (*taskResponse, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	taskID := uuid.New().String()
	resultKey := fmt.Sprintf("%sresult:%s", fleetPrefix, taskID)
	queue := fmt.Sprintf("%s%s:tasks", fleetPrefix, s.worker)

	payload := taskPayload{
		TaskID:    taskID,
		BrowserID: s.browserID,
		Worker:    s.worker,
		Action:    action,
		Args:      args,
		ResultKey: resultKey,
		APIKey:    s.provider.apiKey,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}

	if err := s.provider.rdb.RPush(ctx, queue, data).Err(); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", action, err)
	}

	raw, err := s.provider.rdb.BLPop(ctx, wait, resultKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout waiting for %s result", action)
		}
		return nil, fmt.Errorf("await %s result: %w", action, err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("malformed %s result", action)
	}

	var resp taskResponse
	if err := json.Unmarshal([]byte(raw[1]), &resp); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", action, err)
	}
	if resp.Status == "fail" {
		if resp.Error != "" {
			return nil, errors.New(resp.Error)
		}
		return nil, fmt.Errorf("%s failed", action)
	}
	return &resp, nil
}

func (s *redisSession) ID() string { return s.id }

func (s *redisSession) Navigate(ctx context.Context, url string) error {
	_, err := s.send(ctx, "navigate", map[string]any{"url": url}, defaultRPCWait)
	return err
}

func (s *redisSession) Act(ctx context.Context, instruction string) error {
	_, err := s.send(ctx, "act", map[string]any{"instruction": instruction}, extractRPCWait)
	return err
}

func (s *redisSession) Observe(ctx context.Context, instruction string) (json.RawMessage, error) {
	resp, err := s.send(ctx, "observe", map[string]any{"instruction": instruction}, defaultRPCWait)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (s *redisSession) Extract(ctx context.Context, instruction string, schemaHint string) (json.RawMessage, error) {
	resp, err := s.send(ctx, "extract", map[string]any{
		"instruction": instruction,
		"schema":      schemaHint,
	}, extractRPCWait)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (s *redisSession) CurrentURL(ctx context.Context) (string, error) {
	resp, err := s.send(ctx, "get_current_url", nil, defaultRPCWait)
	if err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (s *redisSession) PageText(ctx context.Context) (string, error) {
	resp, err := s.send(ctx, "get_text", map[string]any{"selector": "body"}, defaultRPCWait)
	if err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (s *redisSession) FillField(ctx context.Context, selector, value string) error {
	_, err := s.send(ctx, "set_value", map[string]any{"selector": selector, "text": value}, defaultRPCWait)
	return err
}

func (s *redisSession) Submit(ctx context.Context, selector string) error {
	_, err := s.send(ctx, "submit", map[string]any{"selector": selector}, defaultRPCWait)
	return err
}

func (s *redisSession) DebugURL() string { return s.debugURL }

func (s *redisSession) LiveViewURL(ctx context.Context) (string, error) {
	resp, err := s.send(ctx, "get_live_view_url", nil, liveViewRPCWait)
	if err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (s *redisSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	_, err := s.send(ctx, "release_browser", nil, releaseRPCWait)
	s.closed = true

	freeKey := fmt.Sprintf("%s%s:free", fleetPrefix, s.worker)
	if addErr := s.provider.rdb.SAdd(ctx, freeKey, s.browserID).Err(); addErr != nil {
		s.provider.logger.Warn("return browser %s to %s failed: %v", s.browserID, s.worker, addErr)
	}
	return err
}
