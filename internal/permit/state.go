package permit

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/pkg/errors"
)

// Phase names a workflow state.
type Phase string

const (
	PhaseInput      Phase = "input"
	PhaseSigning    Phase = "signing"
	PhaseSubmitting Phase = "submitting"
	PhaseConfirmed  Phase = "confirmed"
	PhaseFailed     Phase = "failed"
)

// State is one of Input, Signing, Submitting, Confirmed or Failed.
type State interface {
	Phase() Phase
	isState()
}

// Input is the initial state: the user is still filling in the form.
type Input struct{}

// Signing waits on the wallet.
type Signing struct{}

// Submitting has a signature and a broadcast transaction.
type Submitting struct {
	Signature eip712.Signature
	TxHash    common.Hash
}

// Confirmed holds a successful receipt.
type Confirmed struct {
	TxHash  common.Hash
	Receipt *types.Receipt
}

// Failed records the error and the phase it happened in.
type Failed struct {
	Err  error
	From Phase
}

func (Input) Phase() Phase      { return PhaseInput }
func (Signing) Phase() Phase    { return PhaseSigning }
func (Submitting) Phase() Phase { return PhaseSubmitting }
func (Confirmed) Phase() Phase  { return PhaseConfirmed }
func (Failed) Phase() Phase     { return PhaseFailed }

func (Input) isState()      {}
func (Signing) isState()    {}
func (Submitting) isState() {}
func (Confirmed) isState()  {}
func (Failed) isState()     {}

var transitions = map[Phase][]Phase{
	PhaseInput:      {PhaseSigning},
	PhaseSigning:    {PhaseSubmitting, PhaseFailed},
	PhaseSubmitting: {PhaseConfirmed, PhaseFailed},
}

func allowed(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Machine tracks the state of one deposit or buy.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []Phase
}

func NewMachine() *Machine {
	return &Machine{state: Input{}, history: []Phase{PhaseInput}}
}

// State is the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next if the edge exists.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.Phase()
	if !allowed(from, next.Phase()) {
		return errors.Wrapf(ErrInvalidTransition, "from %s to %s", from, next.Phase())
	}
	if f, ok := next.(Failed); ok && f.From == "" {
		f.From = from
		next = f
	}
	m.state = next
	m.history = append(m.history, next.Phase())
	return nil
}

// Fail moves to Failed from the current phase.
func (m *Machine) Fail(err error) error {
	return m.Transition(Failed{Err: err})
}

// History lists the phases visited, oldest first.
func (m *Machine) History() []Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Phase(nil), m.history...)
}

// Reset returns to Input, for example after the user edits the form.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Input{}
	m.history = []Phase{PhaseInput}
}
