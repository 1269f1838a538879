package patients

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/risk"
)

// ErrPatientNotFound is returned by every Source for an unknown id.
var ErrPatientNotFound = errors.New("patient not found")

// Source supplies patient records to the engine.
type Source interface {
	ListPatients(ctx context.Context) ([]risk.Patient, error)
	GetPatient(ctx context.Context, id string) (risk.Patient, error)
}

// Normalize orders lab panels most recent first. Fixtures and FHIR bundles do
// not guarantee an order; the engine assumes one.
func Normalize(p risk.Patient) risk.Patient {
	p.LabPanels = slices.Clone(p.LabPanels)
	slices.SortStableFunc(p.LabPanels, func(a, b risk.LabPanel) int {
		return b.MeasuredAt.Compare(a.MeasuredAt)
	})
	return p
}

// FileSource serves patients from a JSON array on disk. The file is read
// once on first use.
type FileSource struct {
	path string

	once     sync.Once
	loadErr  error
	patients []risk.Patient
	byID     map[string]int
}

// NewFileSource creates a source for the JSON file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (fs *FileSource) load() {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		fs.loadErr = fmt.Errorf("failed to read patients file %s: %w", fs.path, err)
		return
	}

	patients, err := Decode(data)
	if err != nil {
		fs.loadErr = fmt.Errorf("failed to parse patients file %s: %w", fs.path, err)
		return
	}

	fs.patients = patients
	fs.byID = make(map[string]int, len(patients))
	for i, p := range patients {
		if _, dup := fs.byID[p.ID]; dup {
			log.Warn().Str("patient_id", p.ID).Str("path", fs.path).Msg("Duplicate patient id in file, keeping first")
			continue
		}
		fs.byID[p.ID] = i
	}

	log.Info().
		Str("path", fs.path).
		Int("patients", len(patients)).
		Msg("Loaded patients file")
}

// ListPatients returns every patient in file order.
func (fs *FileSource) ListPatients(ctx context.Context) ([]risk.Patient, error) {
	fs.once.Do(fs.load)
	if fs.loadErr != nil {
		return nil, fs.loadErr
	}
	return slices.Clone(fs.patients), nil
}

// GetPatient returns one patient by id.
func (fs *FileSource) GetPatient(ctx context.Context, id string) (risk.Patient, error) {
	fs.once.Do(fs.load)
	if fs.loadErr != nil {
		return risk.Patient{}, fs.loadErr
	}
	i, ok := fs.byID[id]
	if !ok {
		return risk.Patient{}, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return fs.patients[i], nil
}

// Decode parses a JSON array of patients and normalises each one.
func Decode(data []byte) ([]risk.Patient, error) {
	var patients []risk.Patient
	if err := json.Unmarshal(data, &patients); err != nil {
		return nil, err
	}
	for i, p := range patients {
		if p.ID == "" {
			return nil, fmt.Errorf("patient at index %d has no id", i)
		}
		patients[i] = Normalize(p)
	}
	return patients, nil
}

// MemorySource is a fixed in-memory Source, used for posted batches and tests.
type MemorySource struct {
	patients []risk.Patient
}

// NewMemorySource normalises and keeps patients in the given order.
func NewMemorySource(patients []risk.Patient) *MemorySource {
	out := make([]risk.Patient, len(patients))
	for i, p := range patients {
		out[i] = Normalize(p)
	}
	return &MemorySource{patients: out}
}

func (ms *MemorySource) ListPatients(ctx context.Context) ([]risk.Patient, error) {
	return slices.Clone(ms.patients), nil
}

func (ms *MemorySource) GetPatient(ctx context.Context, id string) (risk.Patient, error) {
	i := slices.IndexFunc(ms.patients, func(p risk.Patient) bool { return p.ID == id })
	if i < 0 {
		return risk.Patient{}, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return ms.patients[i], nil
}

// SortByID orders patients by id; stores with no natural order use it so
// listings are reproducible.
func SortByID(ps []risk.Patient) {
	slices.SortFunc(ps, func(a, b risk.Patient) int { return cmp.Compare(a.ID, b.ID) })
}
