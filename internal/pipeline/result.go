// internal/pipeline/result.go
package pipeline

import "pages-deployer/internal/models"

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeSoftWarning Outcome = "soft_warning"
	OutcomeFatal       Outcome = "fatal"
)

// Result is Ok(repo), SoftWarning(repo, warnings) or Fatal(err).
type Result struct {
	BuildID   string
	Identity  string
	Outcome   Outcome
	Repo      *models.PublishedRepo
	Warnings  []string
	Err       error
	Duplicate bool
	// State is where the run ended; History lists every state it passed through.
	State     State
	History   []State
	Notified  bool
	// Degraded is set when generation fell back to templates. Callers are not told otherwise.
	Degraded bool
}

func (r *Result) ok(repo *models.PublishedRepo) {
	r.Repo = repo
	r.Outcome = OutcomeOK
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeSoftWarning
	}
}

func (r *Result) fail(err error) {
	r.Outcome = OutcomeFatal
	r.Err = err
}

// settle copies the final position of m onto the result.
func (r *Result) settle(m *machine) {
	r.State = m.current
	r.History = append([]State(nil), m.history...)
}

func (r *Result) stateNames() []string {
	names := make([]string, len(r.History))
	for i, s := range r.History {
		names[i] = string(s)
	}
	return names
}
