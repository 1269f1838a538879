package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// patientIndexFields backs listPatientsQuery
var patientIndexFields = []string{"type", "id"}

// EnsureSchema creates the patients collection and the index the patient
// listing query needs. Existing ones are left alone.
func (c *Client) EnsureSchema(ctx context.Context) error {
	bucket := c.connManager.GetBucket()

	err := bucket.CollectionsV2().CreateCollection("_default", PatientCollection, nil, &gocb.CreateCollectionOptions{
		Context: ctx,
	})
	if err != nil && !errors.Is(err, gocb.ErrCollectionExists) {
		return fmt.Errorf("failed to create collection %s: %w", PatientCollection, err)
	}

	err = c.connManager.GetCluster().QueryIndexes().CreateIndex(c.bucketName, "idx_patients_type_id", patientIndexFields, &gocb.CreateQueryIndexOptions{
		IgnoreIfExists: true,
		ScopeName:      "_default",
		CollectionName: PatientCollection,
		Context:        ctx,
	})
	if err != nil {
		return fmt.Errorf("failed to create patient index: %w", err)
	}

	log.Info().
		Str("bucket", c.bucketName).
		Str("collection", PatientCollection).
		Msg("Couchbase schema ready")
	return nil
}
