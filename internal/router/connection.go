package router

import "github.com/go-signalmap/router/internal/expr"

// connectionIDNegotiating is the sentinel id an OUTGOING connection holds
// until the destination negotiates a real id over the admin bus.
const connectionIDNegotiating int32 = -1

// Connection is a directed mapping from one or more source slots to one
// destination slot, with an expression, boundary policies, and scope.
type Connection struct {
	ID int32

	Sources     []*Slot
	Destination *Slot

	ProcessLocation ProcessLocation
	Mode            Mode
	Expression      string
	Evaluator       expr.Evaluator

	// ExprVarHistory holds num_var_instances rows of num_expr_vars
	// variable values, one flat slice of current values per instance
	// (the compiled evaluator owns the shape; the router only grows the
	// outer instance dimension).
	ExprVarHistory [][]float64

	Muted bool

	Status Status

	IsLocal bool
	IsAdmin bool

	// OneSource is true iff every source slot shares one link: true
	// vacuously when every source is local (no remote link at all).
	OneSource bool

	Scope *Scope
}

// defaultOutgoingScope returns the default scope for an OUTGOING
// connection: just the local device.
func defaultOutgoingScope(localDeviceName string) *Scope {
	s := NewScope()
	s.Add(localDeviceName)
	return s
}

// defaultIncomingScope returns the default scope for an INCOMING
// connection: the set of distinct source devices (the local device
// counted once, even if it supplies multiple sources).
//
// The original source computed this scope's hash over the *length* of
// the device name being recorded but hashed the *local* device's name
// string regardless of which source was being processed -- a
// length/name mismatch bug (see SPEC_FULL.md Open Question #2). This
// port hashes the string it is actually naming in every branch: each
// source's own device name, local or remote.
func defaultIncomingScope(localDeviceName string, sourceDeviceNames []string) *Scope {
	s := NewScope()
	seen := make(map[string]bool)
	for _, name := range sourceDeviceNames {
		if name == "" {
			name = localDeviceName
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		s.Add(name)
	}
	return s
}

// evaluate feeds the sources' current sample at an instance's position
// through the connection's compiled evaluator. ok is false if the
// expression yields no output this sample (sparse expressions are
// allowed to skip emitting).
func (c *Connection) evaluate(instanceID int) (out []float64, ok bool) {
	if c.Evaluator == nil {
		return nil, false
	}

	sources := make([][]float64, len(c.Sources))
	for i, src := range c.Sources {
		if instanceID >= len(src.History) || src.History[instanceID] == nil {
			return nil, false
		}
		v, _, latestOK := src.History[instanceID].Latest()
		if !latestOK {
			return nil, false
		}
		sources[i] = v
	}

	var vars []float64
	if c.Evaluator.NumVars() > 0 {
		for len(c.ExprVarHistory) <= instanceID {
			c.ExprVarHistory = append(c.ExprVarHistory, make([]float64, c.Evaluator.NumVars()))
		}
		vars = c.ExprVarHistory[instanceID]
	}

	return c.Evaluator.Eval(sources, vars)
}
