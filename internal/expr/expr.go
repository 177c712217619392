// Package expr implements the expression-compiler external collaborator:
// given a textual expression and the shapes of its inputs/output, it
// produces an Evaluator plus the count of intermediate variables the
// connection must allocate history for.
//
// The router never parses expressions itself; it only calls through the
// Compiler/Evaluator interfaces, so a fuller language (or an FFI to an
// external evaluator) can be dropped in without touching router.go.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCompile indicates the expression text could not be compiled.
var ErrCompile = errors.New("expression compile error")

// Evaluator evaluates one compiled expression against the current sample
// from each source history, producing the destination sample. A nil
// return with ok=false means "no output this sample" (sparse expressions
// are allowed to skip emitting).
type Evaluator interface {
	// NumVars reports how many intermediate variable histories the
	// connection must allocate (one ring per variable, per instance).
	NumVars() int
	// Eval computes the destination vector from the source vectors.
	// vars carries the evaluator's own variable-history state for one
	// instance, read and written in place.
	Eval(sources [][]float64, vars []float64) (out []float64, ok bool)
}

// Compiler compiles textual expressions into Evaluators.
type Compiler interface {
	Compile(text string, numSources int, destLen int) (Evaluator, error)
}

// LinearCompiler compiles the small expression language this router
// supports: "y=x" (identity, first source only) and
// "y=x*K" / "y=x+K" / "y=x*K+C" for numeric constants K, C, evaluated
// element-wise against the first source. This covers the round-trip and
// scaling scenarios the router is tested against; it is not a general
// arithmetic language, and a real deployment would swap in a fuller
// compiler behind the same Compiler interface.
type LinearCompiler struct{}

// NewLinearCompiler returns the default Compiler.
func NewLinearCompiler() LinearCompiler { return LinearCompiler{} }

// Compile implements Compiler.
func (LinearCompiler) Compile(text string, numSources int, destLen int) (Evaluator, error) {
	expr := strings.TrimSpace(text)
	lhs, rhs, ok := strings.Cut(expr, "=")
	if !ok || strings.TrimSpace(lhs) != "y" {
		return nil, fmt.Errorf("parse %q: %w", text, ErrCompile)
	}
	rhs = strings.TrimSpace(rhs)

	scale, offset, err := parseLinear(rhs)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	if numSources < 1 {
		return nil, fmt.Errorf("expression %q requires at least one source: %w", text, ErrCompile)
	}
	return &linearEvaluator{scale: scale, offset: offset}, nil
}

type linearEvaluator struct {
	scale, offset float64
}

func (*linearEvaluator) NumVars() int { return 0 }

func (e *linearEvaluator) Eval(sources [][]float64, _ []float64) ([]float64, bool) {
	if len(sources) == 0 {
		return nil, false
	}
	x := sources[0]
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*e.scale + e.offset
	}
	return out, true
}

// parseLinear parses "x", "x*K", "x+C", or "x*K+C" into (scale, offset).
func parseLinear(rhs string) (scale, offset float64, err error) {
	rhs = strings.ReplaceAll(rhs, " ", "")
	if rhs == "x" {
		return 1, 0, nil
	}

	switch {
	case strings.HasPrefix(rhs, "x*"):
		rest := rhs[len("x*"):]
		if plus := strings.IndexByte(rest, '+'); plus >= 0 {
			k, err := strconv.ParseFloat(rest[:plus], 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parse scale: %w", ErrCompile)
			}
			c, err := strconv.ParseFloat(rest[plus+1:], 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parse offset: %w", ErrCompile)
			}
			return k, c, nil
		}
		k, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse scale: %w", ErrCompile)
		}
		return k, 0, nil

	case strings.HasPrefix(rhs, "x+"):
		c, err := strconv.ParseFloat(rhs[len("x+"):], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse offset: %w", ErrCompile)
		}
		return 1, c, nil

	default:
		return 0, 0, ErrCompile
	}
}
