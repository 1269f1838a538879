package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// ErrNotFound wraps gocb.ErrDocumentNotFound so callers need not import gocb.
var ErrNotFound = errors.New("document not found")

// DocumentManager handles document CRUD operations in named collections of
// the default scope
type DocumentManager struct {
	bucket *gocb.Bucket
}

// NewDocumentManager creates a new document manager
func NewDocumentManager(bucket *gocb.Bucket) *DocumentManager {
	return &DocumentManager{bucket: bucket}
}

func (dm *DocumentManager) collection(name string) *gocb.Collection {
	if name == "" {
		return dm.bucket.DefaultCollection()
	}
	return dm.bucket.DefaultScope().Collection(name)
}

// UpsertDocument stores or updates a document
func (dm *DocumentManager) UpsertDocument(ctx context.Context, collection, docID string, data interface{}) error {
	_, err := dm.collection(collection).Upsert(docID, data, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", docID, err)
	}
	return nil
}

// GetDocument retrieves a document into result
func (dm *DocumentManager) GetDocument(ctx context.Context, collection, docID string, result interface{}) error {
	resultDoc, err := dm.collection(collection).Get(docID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return fmt.Errorf("failed to get document %s: %w", docID, err)
	}

	if err := resultDoc.Content(result); err != nil {
		return fmt.Errorf("failed to parse document content: %w", err)
	}

	return nil
}

// DeleteDocument removes a document
func (dm *DocumentManager) DeleteDocument(ctx context.Context, collection, docID string) error {
	_, err := dm.collection(collection).Remove(docID, &gocb.RemoveOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}

	return nil
}
