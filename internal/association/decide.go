package association

import (
	"context"
	"errors"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

var (
	// ErrAttemptsExhausted is returned when an operator gives no valid answer.
	ErrAttemptsExhausted = errors.New("no valid selection after repeated prompts")

	// ErrRejected is returned by the reject policy for ambiguous events.
	ErrRejected = errors.New("ambiguous association rejected")
)

// Kind classifies an event by how many candidate origins it has.
type Kind int

const (
	Orphan Kind = iota
	AutoAssociate
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Orphan:
		return "orphan"
	case AutoAssociate:
		return "auto-associate"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Classify decides the kind from the candidate count alone.
func Classify(candidates []domain.CandidateOrigin) Kind {
	switch len(candidates) {
	case 0:
		return Orphan
	case 1:
		return AutoAssociate
	default:
		return Ambiguous
	}
}

// Policy resolves ambiguous events. A nil candidate with a nil error means
// "associate with none of them".
type Policy interface {
	Choose(ctx context.Context, res Resolution) (*domain.CandidateOrigin, error)
}

// Decision is the association outcome for one event.
type Decision struct {
	Kind   Kind
	Chosen *domain.CandidateOrigin
	// Render is false when the event should produce no document.
	Render bool
}

// Decider turns a Resolution into a Decision.
type Decider struct {
	ProductType   domain.ProductType
	Policy        Policy
	RenderOrphans bool
}

// Decide applies the classification rules. Origin products never associate;
// associating products render only when linked, unless RenderOrphans is set.
func (d Decider) Decide(ctx context.Context, res Resolution) (Decision, error) {
	if !d.ProductType.RequiresAssociation() {
		return Decision{Kind: Orphan, Render: true}, nil
	}

	kind := Classify(res.Candidates)
	switch kind {
	case Orphan:
		return Decision{Kind: kind, Render: d.RenderOrphans}, nil
	case AutoAssociate:
		c := res.Candidates[0]
		return Decision{Kind: kind, Chosen: &c, Render: true}, nil
	}

	policy := d.Policy
	if policy == nil {
		policy = Automatic{Mode: ModeNone}
	}
	chosen, err := policy.Choose(ctx, res)
	if err != nil {
		return Decision{Kind: kind}, err
	}
	return Decision{Kind: kind, Chosen: chosen, Render: chosen != nil || d.RenderOrphans}, nil
}
