package association

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// Mode selects the behavior of the Automatic policy.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeClosest Mode = "closest"
	ModeReject  Mode = "reject"
)

// ParseMode resolves a policy mode name. "interactive" is handled by the caller.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNone, ModeClosest, ModeReject:
		return m, nil
	default:
		return "", fmt.Errorf("unknown resolution policy %q", s)
	}
}

// Automatic resolves ambiguity without an operator.
type Automatic struct {
	Mode Mode
}

// Choose implements Policy.
func (a Automatic) Choose(_ context.Context, res Resolution) (*domain.CandidateOrigin, error) {
	switch a.Mode {
	case ModeClosest:
		if len(res.Candidates) == 0 {
			return nil, nil
		}
		c := res.Candidates[0]
		return &c, nil
	case ModeReject:
		return nil, fmt.Errorf("%w: %s has %d candidates", ErrRejected, res.Event.ID, len(res.Candidates))
	default:
		return nil, nil
	}
}

// maxPromptAttempts bounds invalid answers before the prompt gives up.
const maxPromptAttempts = 3

// Interactive asks an operator to pick a candidate.
type Interactive struct {
	in  *bufio.Reader
	out io.Writer
}

// NewInteractive creates a policy reading answers from in and writing prompts to out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: bufio.NewReader(in), out: out}
}

// Choose implements Policy. Options are numbered from zero; the option after
// the last candidate means none of them.
func (p *Interactive) Choose(ctx context.Context, res Resolution) (*domain.CandidateOrigin, error) {
	fmt.Fprintf(p.out, "\nEvent %s\n", FormatEvent(res.Event))
	for _, s := range res.Siblings {
		fmt.Fprintf(p.out, "  also in this run: %s\n", FormatEvent(s))
	}
	fmt.Fprintln(p.out, "Possible associations:")
	for i, c := range res.Candidates {
		fmt.Fprintf(p.out, "  %d) %s\n", i, FormatCandidate(c))
	}
	none := len(res.Candidates)
	fmt.Fprintf(p.out, "  %d) None of the above\n", none)

	for attempt := 1; attempt <= maxPromptAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprintf(p.out, "Choose [0-%d]: ", none)
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: input closed", ErrAttemptsExhausted)
			}
			return nil, err
		}

		idx, convErr := strconv.Atoi(strings.TrimSpace(line))
		switch {
		case convErr != nil || idx < 0 || idx > none:
			fmt.Fprintf(p.out, "Invalid choice %q.\n", strings.TrimSpace(line))
		case idx == none:
			return nil, nil
		default:
			c := res.Candidates[idx]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAttemptsExhausted, res.Event.ID)
}
