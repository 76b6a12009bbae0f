package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
)

// Key layout:
//
//	session:{id}:meta|messages|last_intent|company_id|vpn_context|pending_handoff
//	email:{message_id}:processed|receipt|pending
const (
	sessionPrefix = "session:"
	emailPrefix   = "email:"
	pendingSuffix = ":pending"
	scanCount     = 200
)

var sessionFields = []string{"meta", "messages", "last_intent", "company_id", "vpn_context", "pending_handoff"}

func sessionKey(id, field string) string { return sessionPrefix + id + ":" + field }
func emailKey(mid, field string) string  { return emailPrefix + mid + ":" + field }

func sessionKeys(id string) []string {
	keys := make([]string, len(sessionFields))
	for i, f := range sessionFields {
		keys[i] = sessionKey(id, f)
	}
	return keys
}

// RedisStore keeps sessions and email records in Redis. Expiry is delegated
// to per-key TTLs, so Sweep is a no-op.
type RedisStore struct {
	rdb  *redis.Client
	opts Options
	log  *logging.Logger
}

// OpenRedis connects to the Redis server at url (redis://host:port/db) and
// verifies it with PING.
func OpenRedis(ctx context.Context, url string, dialTimeout time.Duration, opts Options, log *logging.Logger) (*RedisStore, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if dialTimeout > 0 {
		ro.DialTimeout = dialTimeout
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", ro.Addr, err)
	}
	s := NewRedisStore(rdb, opts, log)
	s.log.Info().Str("addr", ro.Addr).Int("db", ro.DB).Msg("redis store connected")
	return s, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, opts Options, log *logging.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts.withDefaults(), log: log.Sub("store.redis")}
}

// touch queues an EXPIRE for every key of the session.
func (s *RedisStore) touch(ctx context.Context, p redis.Pipeliner, id string) {
	for _, k := range sessionKeys(id) {
		p.Expire(ctx, k, s.opts.SessionTTL)
	}
}

// write runs fn in a MULTI/EXEC block that also (re)creates the session
// marker and refreshes the TTL of every session key.
func (s *RedisStore) write(ctx context.Context, id string, fn func(p redis.Pipeliner)) error {
	id = normKey(id)
	if id == "" {
		return ErrEmptyKey
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fn(p)
		p.SetNX(ctx, sessionKey(id, "meta"), s.opts.Now().UTC().Format(time.RFC3339), s.opts.SessionTTL)
		s.touch(ctx, p, id)
		return nil
	})
	return err
}

// get reads one session field and refreshes the session TTL in the same
// round trip.
func (s *RedisStore) get(ctx context.Context, id, field string) (string, bool, error) {
	id = normKey(id)
	var cmd *redis.StringCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		cmd = p.Get(ctx, sessionKey(id, field))
		s.touch(ctx, p, id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, err
	}
	return valueOf(cmd)
}

func valueOf(cmd *redis.StringCmd) (string, bool, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) EnsureSession(ctx context.Context, id string) (string, bool, error) {
	id = normKey(id)
	if id == "" {
		id = uuid.New().String()
	}
	var created *redis.BoolCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		created = p.SetNX(ctx, sessionKey(id, "meta"), s.opts.Now().UTC().Format(time.RFC3339), s.opts.SessionTTL)
		s.touch(ctx, p, id)
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, created.Val(), nil
}

func (s *RedisStore) SessionExists(ctx context.Context, id string) (bool, error) {
	id = normKey(id)
	var cmd *redis.IntCmd
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		cmd = p.Exists(ctx, sessionKey(id, "meta"))
		s.touch(ctx, p, id)
		return nil
	}); err != nil {
		return false, err
	}
	return cmd.Val() == 1, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, id string, msg domain.Message) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return s.write(ctx, id, func(p redis.Pipeliner) {
		p.RPush(ctx, sessionKey(normKey(id), "messages"), raw)
	})
}

func (s *RedisStore) History(ctx context.Context, id string) ([]domain.Message, error) {
	id = normKey(id)
	var cmd *redis.StringSliceCmd
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		cmd = p.LRange(ctx, sessionKey(id, "messages"), 0, -1)
		s.touch(ctx, p, id)
		return nil
	}); err != nil {
		return nil, err
	}
	var out []domain.Message
	for _, raw := range cmd.Val() {
		if m, ok := decodeMessage(raw); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *RedisStore) LastIntent(ctx context.Context, id string) (domain.Intent, bool, error) {
	v, ok, err := s.get(ctx, id, "last_intent")
	return domain.Intent(v), ok && v != "", err
}

func (s *RedisStore) SetLastIntent(ctx context.Context, id string, intent domain.Intent) error {
	return s.write(ctx, id, func(p redis.Pipeliner) {
		p.Set(ctx, sessionKey(normKey(id), "last_intent"), string(intent), s.opts.SessionTTL)
	})
}

func (s *RedisStore) TenantID(ctx context.Context, id string) (string, bool, error) {
	v, ok, err := s.get(ctx, id, "company_id")
	return v, ok && v != "", err
}

func (s *RedisStore) SetTenantID(ctx context.Context, id, tenantID string) error {
	return s.write(ctx, id, func(p redis.Pipeliner) {
		p.Set(ctx, sessionKey(normKey(id), "company_id"), tenantID, s.opts.SessionTTL)
	})
}

func (s *RedisStore) PendingHandoff(ctx context.Context, id string) (domain.HandoffSummary, bool, error) {
	raw, ok, err := s.get(ctx, id, "pending_handoff")
	if err != nil || !ok {
		return domain.HandoffSummary{}, false, err
	}
	sum, ok := decodeSummary(s.log, sessionKey(id, "pending_handoff"), raw)
	return sum, ok, nil
}

func (s *RedisStore) SetPendingHandoff(ctx context.Context, id string, sum domain.HandoffSummary) error {
	raw, err := encode(sum)
	if err != nil {
		return err
	}
	return s.write(ctx, id, func(p redis.Pipeliner) {
		p.Set(ctx, sessionKey(normKey(id), "pending_handoff"), raw, s.opts.SessionTTL)
	})
}

func (s *RedisStore) ClearPendingHandoff(ctx context.Context, id string) error {
	return s.clearField(ctx, id, "pending_handoff")
}

func (s *RedisStore) VPNContext(ctx context.Context, id string) (domain.Context, bool, error) {
	raw, ok, err := s.get(ctx, id, "vpn_context")
	if err != nil || !ok {
		return domain.Context{}, false, err
	}
	c, ok := decodeContext(s.log, sessionKey(id, "vpn_context"), raw)
	return c, ok, nil
}

func (s *RedisStore) SetVPNContext(ctx context.Context, id string, c domain.Context) error {
	raw, err := encode(c)
	if err != nil {
		return err
	}
	return s.write(ctx, id, func(p redis.Pipeliner) {
		p.Set(ctx, sessionKey(normKey(id), "vpn_context"), raw, s.opts.SessionTTL)
	})
}

func (s *RedisStore) ClearVPNContext(ctx context.Context, id string) error {
	return s.clearField(ctx, id, "vpn_context")
}

// clearField deletes one session field and refreshes the rest without
// recreating a session that does not exist.
func (s *RedisStore) clearField(ctx context.Context, id, field string) error {
	id = normKey(id)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, sessionKey(id, field))
		s.touch(ctx, p, id)
		return nil
	})
	return err
}

func (s *RedisStore) PendingEmail(ctx context.Context, messageID string) (domain.PendingEmail, bool, error) {
	mid := normKey(messageID)
	if mid == "" {
		return domain.PendingEmail{}, false, nil
	}
	key := emailKey(mid, "pending")
	raw, ok, err := valueOf(s.rdb.Get(ctx, key))
	if err != nil || !ok {
		return domain.PendingEmail{}, false, err
	}
	p, ok := decodePending(s.log, key, raw)
	return p, ok, nil
}

func (s *RedisStore) SetPendingEmail(ctx context.Context, pe domain.PendingEmail) error {
	mid := normKey(pe.MessageID)
	if mid == "" {
		return ErrEmptyKey
	}
	pe.MessageID = mid
	raw, err := encode(pe)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, emailKey(mid, "pending"), raw, s.opts.EmailTTL).Err()
}

func (s *RedisStore) ClearPendingEmail(ctx context.Context, messageID string) error {
	mid := normKey(messageID)
	if mid == "" {
		return nil
	}
	return s.rdb.Del(ctx, emailKey(mid, "pending")).Err()
}

// ListPendingEmails scans email:*:pending without blocking the server. Ids
// may contain ':' so only the outer prefix and suffix are stripped.
func (s *RedisStore) ListPendingEmails(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	iter := s.rdb.Scan(ctx, 0, emailPrefix+"*"+pendingSuffix, scanCount).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if !strings.HasPrefix(k, emailPrefix) || !strings.HasSuffix(k, pendingSuffix) {
			continue
		}
		if mid := k[len(emailPrefix) : len(k)-len(pendingSuffix)]; mid != "" {
			seen[mid] = true
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) IsEmailProcessed(ctx context.Context, messageID string) (bool, error) {
	mid := normKey(messageID)
	if mid == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, emailKey(mid, "processed")).Result()
	return n == 1, err
}

func (s *RedisStore) MarkEmailProcessed(ctx context.Context, messageID string) error {
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	return s.rdb.Set(ctx, emailKey(mid, "processed"), s.stamp(), s.opts.EmailTTL).Err()
}

func (s *RedisStore) stamp() string {
	return strconv.FormatInt(s.opts.Now().Unix(), 10)
}

func (s *RedisStore) EmailReceipt(ctx context.Context, messageID string) (domain.EmailResult, bool, error) {
	mid := normKey(messageID)
	if mid == "" {
		return domain.EmailResult{}, false, nil
	}
	key := emailKey(mid, "receipt")
	raw, ok, err := valueOf(s.rdb.Get(ctx, key))
	if err != nil || !ok {
		return domain.EmailResult{}, false, err
	}
	r, ok := decodeReceipt(s.log, key, raw)
	return r, ok, nil
}

func (s *RedisStore) SetEmailReceipt(ctx context.Context, messageID string, r domain.EmailResult) error {
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	raw, err := encode(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, emailKey(mid, "receipt"), raw, s.opts.EmailTTL).Err()
}

func (s *RedisStore) CompleteEmail(ctx context.Context, messageID string, r domain.EmailResult) error {
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	raw, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, emailKey(mid, "processed"), s.stamp(), s.opts.EmailTTL)
		p.Set(ctx, emailKey(mid, "receipt"), raw, s.opts.EmailTTL)
		p.Del(ctx, emailKey(mid, "pending"))
		return nil
	})
	return err
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, sessionKeys(normKey(id))...).Result()
	return n > 0, err
}

func (s *RedisStore) Sweep(context.Context) (int, error) { return 0, nil }

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
