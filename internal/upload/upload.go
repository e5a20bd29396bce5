// Package upload implements the upload orchestrator (spec C10): it wires
// together the identifier generator, cipher, sniffer, validator chain,
// sanitizer, blob repository and index into the single request protocol
// described in app/routers/upload.py.
package upload

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/duskvault/duskvault/internal/blobstore"
	"github.com/duskvault/duskvault/internal/cipher"
	"github.com/duskvault/duskvault/internal/hashutil"
	"github.com/duskvault/duskvault/internal/index"
	"github.com/duskvault/duskvault/internal/sanitize"
	"github.com/duskvault/duskvault/internal/sniff"
	"github.com/duskvault/duskvault/internal/validate"
	"github.com/duskvault/duskvault/internal/vaulterr"
	"github.com/duskvault/duskvault/internal/wordlist"
)

// MinExpiryMinutes, MaxExpiryMinutes bound the caller-supplied TTL.
const (
	MinExpiryMinutes = 1
	MaxExpiryMinutes = 60
	MinUses          = 1
	MaxUses          = 5
)

// Request carries everything a single upload call needs.
type Request struct {
	Content       []byte
	DeclaredMIME  string
	Filename      string
	ExpiryMinutes int
	Uses          int
	SourceIP      string
}

// Result is what the HTTP layer turns into an UploadResponse body.
type Result struct {
	Identifier  string
	PreviewURL  string
	DownloadURL string
	ExpiryAt    time.Time
	CreatedAt   time.Time
	Uses        int
	Filename    string
	Size        int64
	SHA256      string
}

// Orchestrator implements the C10 upload protocol.
type Orchestrator struct {
	Words      *wordlist.List
	Validators *validate.Chain
	Blobs      *blobstore.Repository
	Index      *index.Index
	Now        func() time.Time
}

// Run executes the full upload protocol: generate identifier and key,
// sniff MIME, validate content, sanitize the filename, encrypt and save to
// disk, compose and persist metadata, rolling back the on-disk write if
// the index save fails.
func (o *Orchestrator) Run(req Request) (*Result, error) {
	if req.ExpiryMinutes < MinExpiryMinutes || req.ExpiryMinutes > MaxExpiryMinutes {
		return nil, vaulterr.New(vaulterr.InvalidArgument, nil, 1,
			"expiry_minutes must be between 1 and 60")
	}
	if req.Uses < MinUses || req.Uses > MaxUses {
		return nil, vaulterr.New(vaulterr.InvalidArgument, nil, 1,
			"uses must be between 1 and 5")
	}

	id, err := o.Words.GenerateUnique(o.Index, wordlist.DefaultWordCount, wordlist.DefaultMaxAttempts)
	if err != nil {
		// Internal, not Exhausted: Exhausted means a download's use-count
		// reached zero, an unrelated, routine condition. Running out of
		// unique identifiers is a wordlist-sizing problem worth paging
		// someone over, not a 410 indistinguishable from a burned link.
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "could not allocate a unique identifier")
	}

	key, err := cipher.GenerateKey()
	if err != nil {
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "could not generate encryption key")
	}

	mimeType := sniff.Detect(req.Content, req.DeclaredMIME)

	if ok, msg := o.Validators.Validate(req.Content, validate.Metadata{MIMEType: mimeType}); !ok {
		return nil, vaulterr.New(vaulterr.InvalidArgument, nil, 1, msg)
	}

	sum := hashutil.SHA256Hex(req.Content)
	safeName := sanitize.Filename(req.Filename, sanitize.DefaultMaxLength)
	if safeName == "" {
		safeName = "file"
	}

	ciphertext, err := cipher.Encrypt(req.Content, key)
	if err != nil {
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "encryption failed")
	}

	if _, err := o.Blobs.Save(id, safeName, ciphertext); err != nil {
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "could not save blob")
	}

	now := o.Now()
	expiryAt := now.Add(time.Duration(req.ExpiryMinutes) * time.Minute)
	rec := index.Record{
		Filename:      safeName,
		MIMEType:      mimeType,
		Size:          int64(len(req.Content)),
		SHA256:        sum,
		CreatedAt:     now,
		ExpiryAt:      expiryAt,
		EncryptionKey: key,
		Uses:          req.Uses,
	}

	ttl := time.Duration(req.ExpiryMinutes) * time.Minute
	if err := o.Index.Save(id, rec, ttl); err != nil {
		if delErr := o.Blobs.Delete(id); delErr != nil {
			return nil, vaulterr.New(vaulterr.Internal, xerrors.Errorf("save failed: %w, rollback also failed: %v", err, delErr), 1,
				"could not persist upload metadata")
		}
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "could not persist upload metadata")
	}

	return &Result{
		Identifier:  id,
		PreviewURL:  "/preview/" + id,
		DownloadURL: "/download/" + id,
		ExpiryAt:    expiryAt,
		CreatedAt:   now,
		Uses:        req.Uses,
		Filename:    safeName,
		Size:        int64(len(req.Content)),
		SHA256:      sum,
	}, nil
}
