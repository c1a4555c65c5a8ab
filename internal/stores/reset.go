package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersionV1 = 1

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetRecord is a pending password-reset challenge. It is stored under
// the digest of the reset token, so the record is only reachable by a
// caller holding the raw token.
type ResetRecord struct {
	UserID    string
	CreatedAt int64
	ExpiresAt int64
	RequestIP string
}

// ResetStore keeps reset challenges in Redis with single-use consumption.
// A per-user pointer key tracks the latest challenge so issuing a new one
// invalidates any outstanding token for the same user.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetStore(redisClient redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	return &ResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ResetStore) key(digest string) string {
	return s.prefix + ":" + digest
}

func (s *ResetStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Save stores a challenge under its token digest and repoints the user
// key, deleting the user's previous challenge if one is still pending.
func (s *ResetStore) Save(ctx context.Context, digest string, record *ResetRecord, ttl time.Duration) error {
	encoded, err := encodeResetRecord(record)
	if err != nil {
		return err
	}

	previous, err := s.redis.Get(ctx, s.userKey(record.UserID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != "" && previous != digest {
			pipe.Del(ctx, s.key(previous))
		}
		pipe.Set(ctx, s.key(digest), encoded, ttl)
		pipe.Set(ctx, s.userKey(record.UserID), digest, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	return nil
}

// Consume atomically reads and deletes the challenge stored under the
// digest. Of N concurrent consumers exactly one receives the record; the
// rest get ErrResetNotFound. Expired challenges are deleted on contact.
func (s *ResetStore) Consume(ctx context.Context, digest string) (*ResetRecord, error) {
	const maxRetries = 4
	key := s.key(digest)

	for i := 0; i < maxRetries; i++ {
		var matched *ResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeResetRecord(data)
			if err != nil {
				return err
			}

			expired := time.Now().Unix() > record.ExpiresAt

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.userKey(record.UserID))
				return nil
			})
			if err != nil {
				return err
			}
			if expired {
				return ErrResetNotFound
			}

			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrResetNotFound
			case errors.Is(err, ErrResetNotFound):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrResetNotFound
}

// Get returns the challenge without consuming it.
func (s *ResetStore) Get(ctx context.Context, digest string) (*ResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	record, err := decodeResetRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, ErrResetNotFound
	}

	return record, nil
}

// InvalidateForUser deletes the user's pending challenge, if any.
func (s *ResetStore) InvalidateForUser(ctx context.Context, userID string) error {
	digest, err := s.redis.Get(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(digest))
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

func encodeResetRecord(record *ResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("reset record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	if len(record.RequestIP) > 65535 {
		return nil, errors.New("reset record ip too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.RequestIP))); err != nil {
		return nil, err
	}
	buf.WriteString(record.RequestIP)

	return buf.Bytes(), nil
}

func decodeResetRecord(data []byte) (*ResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &ResetRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	var ipLen uint16
	if err := binary.Read(reader, binary.BigEndian, &ipLen); err != nil {
		return nil, err
	}
	ip := make([]byte, ipLen)
	if _, err := io.ReadFull(reader, ip); err != nil {
		return nil, err
	}
	record.RequestIP = string(ip)

	return record, nil
}
