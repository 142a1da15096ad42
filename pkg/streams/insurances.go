package streams

import (
	"context"
	"fmt"
	"net/url"

	"github.com/datalift/nikohealth-connector/pkg/client"
)

// PatientInsurances is the dependent stream of per-patient insurance
// records. It does not own patient records; it only reads each parent's
// identifier to build its request path.
//
// One slice is processed per parent patient, and each slice is paginated to
// exhaustion before the next parent is touched. Parents come from the
// patients stream's run-local cache, so driving this stream never re-fetches
// the parent resource.
type PatientInsurances struct {
	pager            Pager
	parent           *Patients
	includeSensitive bool
}

// NewPatientInsurances creates the insurances stream with its parent.
func NewPatientInsurances(transport *client.Client, parent *Patients, includeSensitive bool) *PatientInsurances {
	return &PatientInsurances{
		pager:            NewPager(transport, "patient_insurances"),
		parent:           parent,
		includeSensitive: includeSensitive,
	}
}

// Name implements Stream.
func (s *PatientInsurances) Name() string { return "patient_insurances" }

// Path implements Stream. The concrete request path substitutes the parent
// patient identifier.
func (s *PatientInsurances) Path() string { return "v1/patients/{patient_id}/insurances" }

// PrimaryKey implements Stream.
func (s *PatientInsurances) PrimaryKey() string { return "Id" }

// Schema implements Stream.
func (s *PatientInsurances) Schema() (map[string]any, error) {
	return StreamSchema(s.Name(), s.includeSensitive)
}

// Read implements Stream.
func (s *PatientInsurances) Read(ctx context.Context, emit EmitFunc) error {
	parents, err := s.parent.Records(ctx)
	if err != nil {
		return fmt.Errorf("read parent patients: %w", err)
	}

	for _, parent := range parents {
		id, err := RecordID(parent, s.parent.PrimaryKey())
		if err != nil {
			return fmt.Errorf("patient record: %w", err)
		}

		path := fmt.Sprintf("v1/patients/%s/insurances", url.PathEscape(id))
		if err := s.pager.ReadPath(ctx, path, emit); err != nil {
			return err
		}
	}

	return nil
}
