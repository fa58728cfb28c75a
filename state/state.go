package state

import (
	"errors"
	"sync"
)

// Phase is the coarse lifecycle position of a match.
type Phase string

const (
	AwaitingStart   Phase = "awaiting_start"
	RoundInProgress Phase = "round_in_progress"
	RoundCompleted  Phase = "round_completed"
	MatchCompleted  Phase = "match_completed"
)

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	CanChange(to Phase) bool
	GetCurrentState() Phase
	AddTransition(from Phase, to Phase, condition func() bool) error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 基础状态机实现
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[Phase]map[Phase]func() bool),
	}
}

// NewMatchStateMachine returns a machine in AwaitingStart with the match
// lifecycle transitions registered.
func NewMatchStateMachine() *BaseStateMachine {
	return RestoreMatchStateMachine(AwaitingStart)
}

// RestoreMatchStateMachine is NewMatchStateMachine positioned at current.
func RestoreMatchStateMachine(current Phase) *BaseStateMachine {
	sm := NewBaseStateMachine(current)
	sm.AddTransition(AwaitingStart, RoundInProgress, nil)
	sm.AddTransition(RoundInProgress, RoundCompleted, nil)
	sm.AddTransition(RoundCompleted, RoundInProgress, nil)
	sm.AddTransition(RoundCompleted, MatchCompleted, nil)
	return sm
}

// ChangeState moves to newState. Only registered transitions whose condition
// holds are allowed.
func (sm *BaseStateMachine) ChangeState(newState Phase) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if !sm.allowed(newState) {
		return ErrTransitionNotAllowed
	}
	sm.currentState = newState
	return nil
}

func (sm *BaseStateMachine) CanChange(newState Phase) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.allowed(newState)
}

func (sm *BaseStateMachine) allowed(newState Phase) bool {
	conditions, exists := sm.transitions[sm.currentState]
	if !exists {
		return false
	}
	condition, exists := conditions[newState]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from Phase, to Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}

	sm.transitions[from][to] = condition
	return nil
}
