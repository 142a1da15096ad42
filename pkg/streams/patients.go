package streams

import (
	"context"

	"github.com/datalift/nikohealth-connector/pkg/client"
)

const patientsPath = "v1/patients"

// Patients is the parent stream of patient records.
//
// Records are cached in memory on the first full read so the dependent
// insurances stream can replay parents without re-fetching. The cache lives
// for the duration of one run only.
type Patients struct {
	pager            Pager
	includeSensitive bool

	records []Record
	loaded  bool
}

// NewPatients creates the patients stream on the given transport.
func NewPatients(transport *client.Client, includeSensitive bool) *Patients {
	return &Patients{
		pager:            NewPager(transport, "patients"),
		includeSensitive: includeSensitive,
	}
}

// Name implements Stream.
func (s *Patients) Name() string { return "patients" }

// Path implements Stream.
func (s *Patients) Path() string { return patientsPath }

// PrimaryKey implements Stream.
func (s *Patients) PrimaryKey() string { return "Id" }

// Schema implements Stream.
func (s *Patients) Schema() (map[string]any, error) {
	return StreamSchema(s.Name(), s.includeSensitive)
}

// Read implements Stream. The first read fetches from the API and fills the
// run-local cache; subsequent reads replay cached records.
func (s *Patients) Read(ctx context.Context, emit EmitFunc) error {
	if s.loaded {
		for _, rec := range s.records {
			if err := emit(rec); err != nil {
				return err
			}
		}
		return nil
	}

	return s.load(ctx, emit)
}

// Records returns all patient records, fetching them once if needed.
func (s *Patients) Records(ctx context.Context) ([]Record, error) {
	if !s.loaded {
		if err := s.load(ctx, nil); err != nil {
			return nil, err
		}
	}
	return s.records, nil
}

// load paginates the stream to exhaustion, caching every record and
// forwarding to emit when given. The cache is only committed on a complete
// read; a failed run restarts from page 0.
func (s *Patients) load(ctx context.Context, emit EmitFunc) error {
	var records []Record

	err := s.pager.ReadPath(ctx, patientsPath, func(rec Record) error {
		records = append(records, rec)
		if emit != nil {
			return emit(rec)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.records = records
	s.loaded = true
	return nil
}
