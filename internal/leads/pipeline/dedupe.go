package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"marine_leads_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix  = "leads:dedupe:"
	defaultDedupeTTL = 60 * time.Second
)

// Deduper claims a submission for a short window so repeated posts of the
// same request resolve to one lead.
type Deduper interface {
	// Claim records leadID for the submission key unless another lead holds
	// it. It returns the holder and whether the claim was taken.
	Claim(ctx context.Context, tenantID uuid.UUID, key string, leadID uuid.UUID) (uuid.UUID, bool, error)
}

// RedisDeduper implements Deduper with SET NX and a TTL.
type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper. A non-positive ttl uses 60 seconds.
func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, tenantID uuid.UUID, submission string, leadID uuid.UUID) (uuid.UUID, bool, error) {
	key := dedupeKey(tenantID, submission)
	for range 2 {
		ok, err := d.client.SetNX(ctx, key, leadID.String(), d.ttl).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("claim dedupe key: %w", err)
		}
		if ok {
			return leadID, true, nil
		}

		holder, err := d.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("read dedupe key: %w", err)
		}
		id, err := uuid.Parse(holder)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("dedupe key holds %q: %w", holder, err)
		}
		return id, false, nil
	}
	return leadID, true, nil
}

func dedupeKey(tenantID uuid.UUID, submission string) string {
	sum := sha256.Sum256([]byte(submission))
	return dedupeKeyPrefix + tenantID.String() + ":" + hex.EncodeToString(sum[:])
}

// submissionKey identifies a request: the submitter plus the form and its
// fields. A second, different request from the same contact gets its own key.
// It is empty when the submission carries no contact.
func submissionKey(sub Submission, a domain.Attributes) string {
	var contact string
	switch {
	case a.Email != "":
		contact = "email:" + strings.ToLower(a.Email)
	case a.Phone != "":
		contact = "phone:" + a.Phone
	default:
		return ""
	}
	// json.Marshal sorts map keys, so equal payloads encode identically.
	fields, err := json.Marshal(sub.Fields)
	if err != nil {
		fields = []byte(fmt.Sprint(sub.Fields))
	}
	return strings.Join([]string{contact, sub.FormID, strings.ToLower(sub.SourceDomain), string(fields)}, "\x00")
}
