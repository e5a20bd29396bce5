// Package preview implements the one-shot preview orchestrator (spec C12):
// exists(id) then mark_previewed_once(id), both of which must fail closed
// when either check comes back negative.
package preview

import (
	"time"

	"github.com/duskvault/duskvault/internal/index"
	"github.com/duskvault/duskvault/internal/vaulterr"
)

// Result is the safe-to-disclose subset of metadata: no encryption key.
type Result struct {
	Identifier  string
	Filename    string
	MIMEType    string
	Size        int64
	SHA256      string
	CreatedAt   time.Time
	MinutesLeft int64
	DownloadURL string
	CurlExample string
}

// Orchestrator implements the C12 preview protocol.
type Orchestrator struct {
	Index *index.Index
}

// Run executes exists(id) then mark_previewed_once(id). A missing record
// is reported as NotFound; an already-consumed preview is reported as
// *AlreadyPreviewedError, which is how the caller tells the two apart.
func (o *Orchestrator) Run(id string) (*Result, error) {
	exists, err := o.Index.Exists(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, vaulterr.New(vaulterr.NotFound, nil, 1, "file not found or link expired")
	}

	won, err := o.Index.MarkPreviewedOnce(id)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, &AlreadyPreviewedError{Identifier: id}
	}

	rec, err := o.Index.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, vaulterr.New(vaulterr.NotFound, nil, 1, "file not found or link expired")
	}

	ttl, err := o.Index.GetTTL(id)
	if err != nil {
		return nil, err
	}
	minutesLeft := int64(0)
	if ttl > 0 {
		minutesLeft = ttl / 60
	}

	downloadURL := "/download/" + id
	return &Result{
		Identifier:  id,
		Filename:    rec.Filename,
		MIMEType:    rec.MIMEType,
		Size:        rec.Size,
		SHA256:      rec.SHA256,
		CreatedAt:   rec.CreatedAt,
		MinutesLeft: minutesLeft,
		DownloadURL: downloadURL,
		CurlExample: "curl -OJ " + downloadURL,
	}, nil
}

// AlreadyPreviewedError is returned when an identifier's one-shot preview
// has already been consumed by a prior caller.
type AlreadyPreviewedError struct {
	Identifier string
}

func (e *AlreadyPreviewedError) Error() string {
	return "identifier " + e.Identifier + " has already been previewed"
}
