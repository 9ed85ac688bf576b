package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RevocationRegistry is the durable record of refresh tokens that are still
// honored. A refresh token is only accepted while its entry exists; revoking
// removes the entry, and entries expire with the token so the registry never
// grows unbounded. Tokens are keyed by digest, never stored in plaintext.
type RevocationRegistry interface {
	// Record registers a freshly issued refresh token as trackable.
	Record(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	// IsRevoked reports true when the token is not currently honored.
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Revoke withdraws a single token. Idempotent.
	Revoke(ctx context.Context, token string) error
	// RevokeAll withdraws every tracked token for the user. Idempotent.
	RevokeAll(ctx context.Context, userID uuid.UUID) error
	// RevokeAllExcept withdraws every tracked token for the user except the
	// one presented, used by password change to keep the current session.
	RevokeAllExcept(ctx context.Context, userID uuid.UUID, keep string) error
	// Rotate atomically claims the presented token and records its
	// replacement. At most one concurrent caller wins the claim; everyone
	// else gets claimed=false and must reject the presented token.
	Rotate(ctx context.Context, oldToken, newToken string, userID uuid.UUID, expiresAt time.Time) (claimed bool, err error)
}

// Keys are namespaced by token class so an access-token registry could
// share the same Redis database without collisions.
const (
	redisTokenPrefix = "authx:" + TokenClassRefresh + ":"
	redisIndexPrefix = "authx:" + TokenClassRefresh + ":user:"
)

// RedisRevocationRegistry tracks refresh tokens in Redis. Entries carry the
// token's own expiry so Redis reclaims them without a sweep job.
type RedisRevocationRegistry struct {
	client *redis.Client
	logger Logger
}

// NewRevocationRegistry creates a Redis backed registry.
func NewRevocationRegistry(client *redis.Client) *RedisRevocationRegistry {
	return &RedisRevocationRegistry{
		client: client,
		logger: defLogger{},
	}
}

// WithLogger overrides the registry logger.
func (r *RedisRevocationRegistry) WithLogger(logger Logger) *RedisRevocationRegistry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

var _ RevocationRegistry = (*RedisRevocationRegistry)(nil)

func tokenKey(digest string) string { return redisTokenPrefix + digest }

func indexKey(userID uuid.UUID) string { return redisIndexPrefix + userID.String() }

func (r *RedisRevocationRegistry) Record(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	digest := DigestToken(token)
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return goerrors.New("refresh token is already expired", goerrors.CategoryValidation)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, tokenKey(digest), userID.String(), ttl)
	pipe.SAdd(ctx, indexKey(userID), digest)
	// the index lives as long as the longest lived member
	pipe.Expire(ctx, indexKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return TransientError(err, "failed to record refresh token")
	}

	return nil
}

func (r *RedisRevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := r.client.Exists(ctx, tokenKey(DigestToken(token))).Result()
	if err != nil {
		return false, TransientError(err, "failed to check token revocation")
	}
	return exists == 0, nil
}

func (r *RedisRevocationRegistry) Revoke(ctx context.Context, token string) error {
	digest := DigestToken(token)

	owner, err := r.client.GetDel(ctx, tokenKey(digest)).Result()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			// already revoked or expired
			return nil
		}
		return TransientError(err, "failed to revoke token")
	}

	if userID, parseErr := uuid.Parse(owner); parseErr == nil {
		if err := r.client.SRem(ctx, indexKey(userID), digest).Err(); err != nil {
			r.logger.Warn("failed to trim revocation index", "user_id", owner, "error", err)
		}
	}

	return nil
}

func (r *RedisRevocationRegistry) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return r.revokeAll(ctx, userID, "")
}

func (r *RedisRevocationRegistry) RevokeAllExcept(ctx context.Context, userID uuid.UUID, keep string) error {
	return r.revokeAll(ctx, userID, DigestToken(keep))
}

func (r *RedisRevocationRegistry) revokeAll(ctx context.Context, userID uuid.UUID, keepDigest string) error {
	digests, err := r.client.SMembers(ctx, indexKey(userID)).Result()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			return nil
		}
		return TransientError(err, "failed to enumerate user tokens")
	}

	if len(digests) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, digest := range digests {
		if keepDigest != "" && DigestsEqual(digest, keepDigest) {
			continue
		}
		pipe.Del(ctx, tokenKey(digest))
		pipe.SRem(ctx, indexKey(userID), digest)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return TransientError(err, "failed to revoke user tokens")
	}

	return nil
}

func (r *RedisRevocationRegistry) Rotate(ctx context.Context, oldToken, newToken string, userID uuid.UUID, expiresAt time.Time) (bool, error) {
	oldDigest := DigestToken(oldToken)

	// GETDEL is the claim: exactly one concurrent rotation observes the
	// value, every other caller sees nil and must treat the presented
	// token as revoked.
	owner, err := r.client.GetDel(ctx, tokenKey(oldDigest)).Result()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, TransientError(err, "failed to claim refresh token rotation")
	}

	if owner != userID.String() {
		// entry belonged to someone else; do not honor it and do not
		// restore it
		return false, nil
	}

	if err := r.client.SRem(ctx, indexKey(userID), oldDigest).Err(); err != nil {
		r.logger.Warn("failed to trim revocation index", "user_id", userID.String(), "error", err)
	}

	if err := r.Record(ctx, newToken, userID, expiresAt); err != nil {
		return false, err
	}

	return true, nil
}
