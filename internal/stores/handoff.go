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

const (
	handoffRecordVersion1 = 1
	maxHandoffFieldLength = 65535
)

var (
	ErrHandoffNotFound  = errors.New("handoff record not found")
	ErrHandoffExpired   = errors.New("handoff record expired")
	ErrHandoffCollision = errors.New("handoff key already exists")
	ErrHandoffCorrupt   = errors.New("handoff record corrupt")
	ErrHandoffBackend   = errors.New("handoff backend unavailable")
)

// HandoffRecord is the payload stored under a handoff key. Timestamps are
// unix milliseconds.
type HandoffRecord struct {
	UserID       string
	TenantID     string
	Email        string
	IntendedPath string
	IssuedAt     int64
	ExpiresAt    int64
}

const takeHandoffScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return false
end
redis.call("DEL", KEYS[1])
return data
`

var takeHandoffLua = redis.NewScript(takeHandoffScript)

// HandoffStore keeps handoff records in Redis.
type HandoffStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewHandoffStore(redisClient redis.UniversalClient, prefix string) *HandoffStore {
	if prefix == "" {
		prefix = "sso"
	}
	return &HandoffStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for the record expiry check.
func (s *HandoffStore) WithClock(now func() time.Time) *HandoffStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *HandoffStore) key(hashedToken string) string {
	return s.prefix + ":" + hashedToken
}

// Save writes record only if no record exists under hashedToken.
func (s *HandoffStore) Save(
	ctx context.Context,
	hashedToken string,
	record *HandoffRecord,
	ttl time.Duration,
) error {
	encoded, err := EncodeHandoffRecord(record)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(hashedToken), encoded, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandoffBackend, err)
	}
	if !ok {
		return ErrHandoffCollision
	}
	return nil
}

// Take atomically reads and deletes the record under hashedToken.
//
//	Performance: 1 Lua EVALSHA.
func (s *HandoffStore) Take(ctx context.Context, hashedToken string) (*HandoffRecord, error) {
	data, err := takeHandoffLua.Run(ctx, s.redis, []string{s.key(hashedToken)}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrHandoffNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrHandoffBackend, err)
	}

	record, err := DecodeHandoffRecord([]byte(data))
	if err != nil {
		return nil, err
	}
	if s.now().UnixMilli() >= record.ExpiresAt {
		return nil, ErrHandoffExpired
	}
	return record, nil
}

// Get reads the record without consuming it.
func (s *HandoffStore) Get(ctx context.Context, hashedToken string) (*HandoffRecord, error) {
	data, err := s.redis.Get(ctx, s.key(hashedToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrHandoffNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrHandoffBackend, err)
	}

	record, err := DecodeHandoffRecord(data)
	if err != nil {
		return nil, err
	}
	if s.now().UnixMilli() >= record.ExpiresAt {
		return nil, ErrHandoffExpired
	}
	return record, nil
}

// Delete removes the record. Deleting a missing key is not an error.
func (s *HandoffStore) Delete(ctx context.Context, hashedToken string) error {
	if err := s.redis.Del(ctx, s.key(hashedToken)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrHandoffBackend, err)
	}
	return nil
}

func EncodeHandoffRecord(record *HandoffRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil handoff record")
	}

	var buf bytes.Buffer
	buf.WriteByte(handoffRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.UserID, record.TenantID, record.Email, record.IntendedPath} {
		if len(field) > maxHandoffFieldLength {
			return nil, errors.New("handoff record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func DecodeHandoffRecord(data []byte) (*HandoffRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandoffCorrupt, err)
	}
	if version != handoffRecordVersion1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrHandoffCorrupt, version)
	}

	record := &HandoffRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandoffCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandoffCorrupt, err)
	}

	fields := []*string{&record.UserID, &record.TenantID, &record.Email, &record.IntendedPath}
	for _, field := range fields {
		value, err := readString(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandoffCorrupt, err)
		}
		*field = value
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrHandoffCorrupt)
	}

	return record, nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
