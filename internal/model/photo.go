package model

import "time"

// Photo is an admitted submission. It is immutable once created.
//
// ContentRef is the opaque identifier returned by the external content store.
// It is unique across photos and is the key every wall session deduplicates on.
type Photo struct {
	ID         string    `json:"id"         db:"id"`
	UserID     string    `json:"userId"     db:"user_id"`
	ContentRef string    `json:"contentRef" db:"content_ref"`
	Caption    string    `json:"caption"    db:"caption"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
