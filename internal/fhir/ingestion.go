package fhir

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"stealthcompany.com/glycorisk/internal/metrics"
	"stealthcompany.com/glycorisk/internal/risk"
)

// PatientWriter stores mapped patient records.
type PatientWriter interface {
	UpsertPatient(ctx context.Context, p risk.Patient, source string) error
}

// IngestResult summarises one ingestion run
type IngestResult struct {
	Fetched int
	Stored  int
	Failed  int
}

// Ingester pulls patients from FHIR and writes engine input records
type Ingester struct {
	client  *Client
	writer  PatientWriter
	workers int
}

// NewIngester creates an ingester fetching up to workers patients at once
func NewIngester(client *Client, writer PatientWriter, workers int) *Ingester {
	if workers <= 0 {
		workers = 1
	}
	return &Ingester{client: client, writer: writer, workers: workers}
}

// Run ingests up to count patients. A patient whose observations or
// encounters cannot be fetched or stored is counted as failed; only failing
// to list patients, or ctx cancellation, aborts the run.
func (ing *Ingester) Run(ctx context.Context, count int) (IngestResult, error) {
	startTime := time.Now()

	fhirPatients, err := ing.client.ListPatients(ctx, count)
	if err != nil {
		metrics.RecordIngestionMetrics(startTime, "failed", 0, 0)
		return IngestResult{}, fmt.Errorf("failed to list patients: %w", err)
	}

	log.Info().Int("count", len(fhirPatients)).Msg("Fetched FHIR patients")

	var stored, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)

	for i, fp := range fhirPatients {
		g.Go(func() error {
			if err := ing.ingestPatient(gctx, fp); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Error().
					Err(err).
					Str("patient_id", fp.ID).
					Msg("Failed to ingest patient")
				failed.Add(1)
				return nil
			}

			if n := stored.Add(1); n%50 == 0 {
				log.Info().
					Int64("stored", n).
					Int("total", len(fhirPatients)).
					Int("index", i).
					Msg("Progress update")
			}
			return nil
		})
	}

	result := IngestResult{Fetched: len(fhirPatients)}
	waitErr := g.Wait()
	result.Stored = int(stored.Load())
	result.Failed = int(failed.Load())

	if waitErr != nil {
		metrics.RecordIngestionMetrics(startTime, "cancelled", result.Stored, result.Failed)
		return result, fmt.Errorf("ingestion interrupted: %w", waitErr)
	}

	metrics.RecordIngestionMetrics(startTime, "success", result.Stored, result.Failed)

	log.Info().
		Int("total", result.Fetched).
		Int("stored", result.Stored).
		Int("failed", result.Failed).
		Dur("duration", time.Since(startTime)).
		Msg("Completed ingestion")

	return result, nil
}

func (ing *Ingester) ingestPatient(ctx context.Context, fp Patient) error {
	observations, err := ing.client.PatientObservations(ctx, fp.ID)
	if err != nil {
		return err
	}
	encounters, err := ing.client.PatientEncounters(ctx, fp.ID)
	if err != nil {
		return err
	}

	p := BuildPatient(fp, observations, encounters)
	if err := ing.writer.UpsertPatient(ctx, p, "fhir"); err != nil {
		return fmt.Errorf("failed to store patient %s: %w", fp.ID, err)
	}

	log.Debug().
		Str("patient_id", p.ID).
		Int("panels", len(p.LabPanels)).
		Int("visits", len(p.Visits)).
		Msg("Stored patient")
	return nil
}
