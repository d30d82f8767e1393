// Package dispatch sends rendered documents to the distribution network
// through the external PDL product client.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrTimeout is returned when the product client does not exit within the
// configured bound.
var ErrTimeout = errors.New("dispatch timed out")

const (
	inputWedge     = "gov.usgs.earthquake.eids.EIDSInputWedge"
	quakemlCreator = "gov.usgs.earthquake.eids.QuakemlProductCreator"
	productClient  = "gov.usgs.earthquake.distribution.ProductClient"

	// waitDelay bounds how long output pipes held open by orphaned
	// children may delay the return after the client is killed.
	waitDelay = 2 * time.Second
)

// Request describes one document to send.
type Request struct {
	Path        string
	ID          string
	Source      string
	ProductType string
	Version     string
	ElapsedDays float64
	Trump       bool
}

// Result is the combined outcome of the send and, when requested, the trump call.
type Result struct {
	Success  bool
	Output   string
	Errors   string
	ExitCode int
}

// Dispatcher sends one document.
type Dispatcher interface {
	Send(ctx context.Context, req Request) (Result, error)
}

// PDLConfig locates the product client and its credentials.
type PDLConfig struct {
	// Command is the executable. With Jar set it is the JVM launcher,
	// otherwise it is the client itself.
	Command    string
	Jar        string
	ConfigFile string
	KeyFile    string
	Timeout    time.Duration
}

// PDL runs the product client as a subprocess.
type PDL struct {
	cfg PDLConfig
}

// NewPDL creates a PDL dispatcher.
func NewPDL(cfg PDLConfig) *PDL {
	if cfg.Command == "" {
		cfg.Command = "java"
	}
	return &PDL{cfg: cfg}
}

// Send runs the input wedge for req.Path and, when req.Trump is set, a
// second call that trumps the just-sent version. Both calls are always
// attempted; a failed first call stays failed in the combined result.
func (p *PDL) Send(ctx context.Context, req Request) (Result, error) {
	res, err := p.run(ctx, p.sendArgs(req))
	if !req.Trump || errors.Is(err, context.Canceled) {
		return res, err
	}

	trump, terr := p.run(ctx, p.trumpArgs(req))
	return combine(res, trump), errors.Join(err, terr)
}

func (p *PDL) sendArgs(req Request) []string {
	return []string{
		"--mainclass=" + inputWedge,
		"--parser=" + quakemlCreator,
		"--configFile=" + p.cfg.ConfigFile,
		"--privateKey=" + p.cfg.KeyFile,
		"--file=" + req.Path,
		"--property-elapsed-days=" + strconv.FormatFloat(req.ElapsedDays, 'f', 2, 64),
	}
}

func (p *PDL) trumpArgs(req Request) []string {
	return []string{
		"--mainclass=" + productClient,
		"--send",
		"--configFile=" + p.cfg.ConfigFile,
		"--privateKey=" + p.cfg.KeyFile,
		"--source=" + req.Source,
		"--type=trump-" + req.ProductType,
		"--code=" + req.ID,
		"--property-trump-source=" + req.Source,
		"--property-trump-code=" + req.ID,
		"--property-trump-version=" + req.Version,
	}
}

// run executes one client call. A non-zero exit is reported in the Result,
// not as an error; errors are reserved for calls that could not complete.
func (p *PDL) run(ctx context.Context, args []string) (Result, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	name := p.cfg.Command
	if p.cfg.Jar != "" {
		args = append([]string{"-jar", p.cfg.Jar}, args...)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := Result{Output: stdout.String(), Errors: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.ExitCode = -1
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, p.cfg.Timeout, strings.Join(args, " "))
	case ctx.Err() != nil:
		res.ExitCode = -1
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case err != nil:
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", name, err)
	}
	res.Success = true
	return res, nil
}

// combine merges the send and trump results. The output of both calls is
// kept; the exit code of the first failure wins.
func combine(send, trump Result) Result {
	out := Result{
		Success: send.Success && trump.Success,
		Output:  joinNonEmpty(send.Output, trump.Output),
		Errors:  joinNonEmpty(send.Errors, trump.Errors),
	}
	switch {
	case !send.Success:
		out.ExitCode = send.ExitCode
	case !trump.Success:
		out.ExitCode = trump.ExitCode
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}
