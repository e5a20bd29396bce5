// Package download implements the download orchestrator (spec C11):
// atomic decrement precedes the read, so two simultaneous requests against
// an upload with one remaining use can never both receive bytes.
package download

import (
	"github.com/duskvault/duskvault/internal/blobstore"
	"github.com/duskvault/duskvault/internal/cipher"
	"github.com/duskvault/duskvault/internal/hashutil"
	"github.com/duskvault/duskvault/internal/index"
	"github.com/duskvault/duskvault/internal/vaulterr"
)

// Result is what the HTTP layer streams back on a successful download.
type Result struct {
	Plaintext  []byte
	Filename   string
	MIMEType   string
	SHA256     string
	Remaining  int
	Identifier string
}

// Orchestrator implements the C11 download protocol. Cleanup is invoked
// (in the caller's goroutine of choice) when Remaining == 0, so the
// orchestrator itself never blocks a response on post-exhaustion deletion.
type Orchestrator struct {
	Index *index.Index
	Blobs *blobstore.Repository
}

// Run executes the decrement-then-read protocol for id. On success the
// caller is responsible for scheduling Cleanup when result.Remaining == 0.
func (o *Orchestrator) Run(id string) (*Result, error) {
	n, err := o.Index.DecrementUses(id)
	if err != nil {
		return nil, err
	}
	switch {
	case n == index.UsesNotFound:
		return nil, vaulterr.New(vaulterr.NotFound, nil, 1, "file not found or link expired")
	case n == index.UsesExhausted:
		return nil, vaulterr.New(vaulterr.Exhausted, nil, 1, "download limit has been reached")
	}

	rec, err := o.Index.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil || len(rec.EncryptionKey) == 0 {
		return nil, vaulterr.New(vaulterr.NotFound, nil, 1, "file not found or link expired")
	}

	ciphertext, err := o.Blobs.Read(id, rec.Filename)
	if err != nil {
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "stored blob missing from disk")
	}

	plaintext, err := cipher.Decrypt(ciphertext, rec.EncryptionKey, 0)
	if err != nil {
		return nil, vaulterr.New(vaulterr.Internal, err, 1, "decryption failed")
	}

	sum := hashutil.SHA256Hex(plaintext)
	if sum != rec.SHA256 {
		return nil, &IntegrityError{Expected: rec.SHA256, Got: sum}
	}

	return &Result{
		Plaintext:  plaintext,
		Filename:   rec.Filename,
		MIMEType:   rec.MIMEType,
		SHA256:     sum,
		Remaining:  n,
		Identifier: id,
	}, nil
}

// Cleanup deletes the on-disk blob and index record for an exhausted
// identifier. Call once Result.Remaining == 0.
func (o *Orchestrator) Cleanup(id string) error {
	if err := o.Blobs.Delete(id); err != nil {
		return vaulterr.New(vaulterr.Internal, err, 1, "cleanup: delete blob failed")
	}
	if err := o.Index.Delete(id); err != nil {
		return vaulterr.New(vaulterr.Internal, err, 1, "cleanup: delete index record failed")
	}
	return nil
}

// IntegrityError reports a post-decrypt SHA-256 mismatch (spec §4.11 step
// 6): the service logs it critically and responds 500 with both hashes.
type IntegrityError struct {
	Expected string
	Got      string
}

func (e *IntegrityError) Error() string {
	return "integrity check failed: expected " + e.Expected + ", got " + e.Got
}
