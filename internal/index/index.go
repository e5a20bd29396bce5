// Package index is the concurrency heart of the service (spec C8): an
// external key-value store reachable over a connection pool, holding one
// record per upload across three subkeys sharing a TTL. Writes go through a
// MULTI/EXEC transaction and the compound decrement/preview operations use
// server-side Lua scripts so two concurrent callers can never both observe
// a stale read, the same
// pipelined-transaction-plus-EVAL pattern internal/blob's teacher session
// store uses for session inserts (session/redissession/redissession.go).
package index

import (
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"

	"github.com/duskvault/duskvault/internal/vaulterr"
)

// field names within the upload:<id> hash.
const (
	fieldFilename      = "filename"
	fieldMIMEType      = "mime_type"
	fieldSize          = "size"
	fieldSHA256        = "sha256"
	fieldCreatedAt     = "created_at"
	fieldExpiryAt      = "expiry_at"
	fieldEncryptionKey = "encryption_key"
)

// Record is the assembled metadata for one upload, read back from the
// three subkeys that make up upload:<id>.
type Record struct {
	Filename      string
	MIMEType      string
	Size          int64
	SHA256        string
	CreatedAt     time.Time
	ExpiryAt      time.Time
	EncryptionKey []byte
	Uses          int
	Previewed     bool
}

// Index is a connection-pool-backed store of upload records.
type Index struct {
	pool *redis.Pool
}

// New wraps an existing redigo pool.
func New(pool *redis.Pool) *Index {
	return &Index{pool: pool}
}

func (idx *Index) conn() redis.Conn {
	return idx.pool.Get()
}

func metaKey(id string) string      { return "upload:" + id }
func usesKey(id string) string      { return "upload:" + id + ":uses" }
func previewedKey(id string) string { return "upload:" + id + ":previewed" }

// Ping verifies connectivity, used by the health reporter.
func (idx *Index) Ping() error {
	conn := idx.conn()
	defer conn.Close()
	_, err := conn.Do("PING")
	if err != nil {
		return vaulterr.New(vaulterr.Unavailable, err, 1, "index: ping failed")
	}
	return nil
}

// Save writes the metadata, use-counter and previewed flag subkeys for id
// in a single pipelined transaction, all three sharing ttl.
func (idx *Index) Save(id string, rec Record, ttl time.Duration) error {
	conn := idx.conn()
	defer conn.Close()

	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	key := metaKey(id)
	if err := conn.Send("MULTI"); err != nil {
		return wrapTransport(err)
	}
	if err := conn.Send("HMSET",
		key, fieldFilename, rec.Filename,
		fieldMIMEType, rec.MIMEType,
		fieldSize, rec.Size,
		fieldSHA256, rec.SHA256,
		fieldCreatedAt, rec.CreatedAt.UTC().Format(time.RFC3339),
		fieldExpiryAt, rec.ExpiryAt.UTC().Format(time.RFC3339),
		fieldEncryptionKey, rec.EncryptionKey,
	); err != nil {
		return wrapTransport(err)
	}
	if err := conn.Send("EXPIRE", key, seconds); err != nil {
		return wrapTransport(err)
	}
	if err := conn.Send("SET", usesKey(id), rec.Uses, "EX", seconds); err != nil {
		return wrapTransport(err)
	}
	if err := conn.Send("SET", previewedKey(id), "false", "EX", seconds); err != nil {
		return wrapTransport(err)
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return wrapTransport(err)
	}
	return nil
}

// Get reads all three subkeys in one pipeline and assembles a Record. It
// returns (nil, nil) if the identifier is absent.
func (idx *Index) Get(id string) (*Record, error) {
	conn := idx.conn()
	defer conn.Close()

	if err := conn.Send("HGETALL", metaKey(id)); err != nil {
		return nil, wrapTransport(err)
	}
	if err := conn.Send("GET", usesKey(id)); err != nil {
		return nil, wrapTransport(err)
	}
	if err := conn.Send("GET", previewedKey(id)); err != nil {
		return nil, wrapTransport(err)
	}
	if err := conn.Flush(); err != nil {
		return nil, wrapTransport(err)
	}

	fields, err := redis.StringMap(conn.Receive())
	if err != nil {
		return nil, wrapTransport(err)
	}
	usesRaw, err := redis.String(conn.Receive())
	if err != nil && err != redis.ErrNil {
		return nil, wrapTransport(err)
	}
	previewedRaw, err := redis.String(conn.Receive())
	if err != nil && err != redis.ErrNil {
		return nil, wrapTransport(err)
	}

	if len(fields) == 0 {
		return nil, nil
	}

	size, _ := strconv.ParseInt(fields[fieldSize], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339, fields[fieldCreatedAt])
	expiryAt, _ := time.Parse(time.RFC3339, fields[fieldExpiryAt])
	uses, _ := strconv.Atoi(usesRaw)

	return &Record{
		Filename:      fields[fieldFilename],
		MIMEType:      fields[fieldMIMEType],
		Size:          size,
		SHA256:        fields[fieldSHA256],
		CreatedAt:     createdAt,
		ExpiryAt:      expiryAt,
		EncryptionKey: []byte(fields[fieldEncryptionKey]),
		Uses:          uses,
		Previewed:     previewedRaw == "true",
	}, nil
}

// GetTTL returns the remaining seconds to live on the primary subkey, or
// -1 if absent.
func (idx *Index) GetTTL(id string) (int64, error) {
	conn := idx.conn()
	defer conn.Close()
	ttl, err := redis.Int64(conn.Do("TTL", metaKey(id)))
	if err != nil {
		return -1, wrapTransport(err)
	}
	if ttl < 0 {
		return -1, nil
	}
	return ttl, nil
}

// Exists reports whether id's primary metadata subkey is present.
func (idx *Index) Exists(id string) (bool, error) {
	conn := idx.conn()
	defer conn.Close()
	n, err := redis.Int(conn.Do("EXISTS", metaKey(id)))
	if err != nil {
		return false, wrapTransport(err)
	}
	return n > 0, nil
}

// Delete removes all three subkeys for id. Idempotent.
func (idx *Index) Delete(id string) error {
	conn := idx.conn()
	defer conn.Close()
	_, err := conn.Do("DEL", metaKey(id), usesKey(id), previewedKey(id))
	if err != nil {
		return wrapTransport(err)
	}
	return nil
}

// Use-count sentinels returned by DecrementUses.
const (
	UsesNotFound  = -2
	UsesExhausted = -1
)

// decrementScript implements decrement_uses atomically: absent counter
// returns UsesNotFound, a counter already at or below zero returns
// UsesExhausted without modifying it, otherwise it is decremented and the
// new value returned.
var decrementScript = redis.NewScript(1, `
	local v = redis.call('GET', KEYS[1])
	if v == false then
		return -2
	end
	local n = tonumber(v)
	if n <= 0 then
		return -1
	end
	n = n - 1
	local ttl = redis.call('TTL', KEYS[1])
	redis.call('SET', KEYS[1], n)
	if ttl > 0 then
		redis.call('EXPIRE', KEYS[1], ttl)
	end
	return n
`)

// DecrementUses atomically decrements id's use counter, per the C8
// contract: -2 means the counter is absent (not found or expired), -1
// means it is exhausted, and any value >= 0 is the new remaining count.
func (idx *Index) DecrementUses(id string) (int, error) {
	conn := idx.conn()
	defer conn.Close()

	n, err := redis.Int(decrementScript.Do(conn, usesKey(id)))
	if err != nil {
		return 0, wrapTransport(err)
	}
	return n, nil
}

// previewScript implements mark_previewed_once as a single atomic
// check-and-flip: unlike the non-atomic existence-then-getset the
// original implementation used (an EXISTS followed by a separate GETSET,
// leaving a window where two concurrent callers can both observe the flag
// still "false"), this script reads and conditionally writes the flag
// inside one EVAL, so the store serializes every caller for a given id.
var previewScript = redis.NewScript(1, `
	local v = redis.call('GET', KEYS[1])
	if v == false then
		return 0
	end
	if v == 'true' then
		return 0
	end
	local ttl = redis.call('TTL', KEYS[1])
	redis.call('SET', KEYS[1], 'true')
	if ttl > 0 then
		redis.call('EXPIRE', KEYS[1], ttl)
	end
	return 1
`)

// MarkPreviewedOnce returns true the first time it is called for id,
// false on every subsequent call and when the subkey is absent.
func (idx *Index) MarkPreviewedOnce(id string) (bool, error) {
	conn := idx.conn()
	defer conn.Close()

	n, err := redis.Int(previewScript.Do(conn, previewedKey(id)))
	if err != nil {
		return false, wrapTransport(err)
	}
	return n == 1, nil
}

func wrapTransport(err error) error {
	return vaulterr.New(vaulterr.Unavailable, err, 1, "index: transport error")
}
