package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/internal/risk"
)

// PatientCollection holds one document per patient in the default scope.
const PatientCollection = "patients"

// PatientDocID is the key of a patient document.
func PatientDocID(patientID string) string {
	return "Patient/" + patientID
}

// patientDocument is the stored shape: the input record plus bookkeeping.
type patientDocument struct {
	Type string `json:"type"`
	risk.Patient
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDocument(p risk.Patient, source string, now time.Time) patientDocument {
	return patientDocument{
		Type:      "patient",
		Patient:   p,
		Source:    source,
		UpdatedAt: now,
	}
}

// listPatientsQuery selects every patient document of the bucket.
func listPatientsQuery(bucket string) string {
	return fmt.Sprintf(
		"SELECT p.* FROM `%s`.`_default`.`%s` AS p WHERE p.type = \"patient\" ORDER BY p.id",
		bucket, PatientCollection,
	)
}

// PatientStore is the Couchbase-backed patients.Source. Reads are refused
// while an ingest holds the database lock.
type PatientStore struct {
	docs    *DocumentManager
	locker  *DatabaseLocker
	cluster *gocb.Cluster
	bucket  string
}

var _ patients.Source = (*PatientStore)(nil)

func (ps *PatientStore) ensureUnlocked(ctx context.Context) error {
	locked, err := ps.locker.CheckLockStatus(ctx)
	if err != nil {
		return err
	}
	if locked {
		return ErrLocked
	}
	return nil
}

// ListPatients reads every patient with N1QL, ordered by id.
func (ps *PatientStore) ListPatients(ctx context.Context) ([]risk.Patient, error) {
	if err := ps.ensureUnlocked(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := ps.cluster.Query(listPatientsQuery(ps.bucket), &gocb.QueryOptions{
		Context:         ctx,
		ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var out []risk.Patient
	for rows.Next() {
		var doc patientDocument
		if err := rows.Row(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode patient row: %w", err)
		}
		out = append(out, patients.Normalize(doc.Patient))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patient query failed: %w", err)
	}

	log.Debug().
		Int("patients", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Listed patients from Couchbase")

	return out, nil
}

// GetPatient reads one patient document.
func (ps *PatientStore) GetPatient(ctx context.Context, id string) (risk.Patient, error) {
	if err := ps.ensureUnlocked(ctx); err != nil {
		return risk.Patient{}, err
	}

	var doc patientDocument
	if err := ps.docs.GetDocument(ctx, PatientCollection, PatientDocID(id), &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return risk.Patient{}, fmt.Errorf("%w: %s", patients.ErrPatientNotFound, id)
		}
		return risk.Patient{}, err
	}
	return patients.Normalize(doc.Patient), nil
}

// UpsertPatient writes one patient, replacing any earlier version.
func (ps *PatientStore) UpsertPatient(ctx context.Context, p risk.Patient, source string) error {
	if p.ID == "" {
		return fmt.Errorf("patient has no id")
	}
	doc := toDocument(patients.Normalize(p), source, time.Now().UTC())
	return ps.docs.UpsertDocument(ctx, PatientCollection, PatientDocID(p.ID), doc)
}
