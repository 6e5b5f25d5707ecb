// Package transition describes the legal moves of the ledger's status machines.
package transition

import (
	"errors"
	"fmt"
)

var ErrStateConflict = errors.New("state_conflict")

// ConflictError reports a transition that is not legal from the record's current state.
type ConflictError struct {
	Entity    string
	ID        string
	Current   string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %q to %q", e.Entity, e.ID, e.Current, e.Requested)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrStateConflict
}

// Machine is a closed transition table over one status type.
type Machine[S ~string] struct {
	edges map[S]map[S]struct{}
}

func New[S ~string](edges map[S][]S) Machine[S] {
	m := Machine[S]{edges: make(map[S]map[S]struct{}, len(edges))}
	for from, targets := range edges {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		m.edges[from] = set
	}
	return m
}

func (m Machine[S]) Can(from, to S) bool {
	_, ok := m.edges[from][to]
	return ok
}

// Check returns a *ConflictError when from -> to is not an edge.
func (m Machine[S]) Check(entity, id string, from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	return &ConflictError{Entity: entity, ID: id, Current: string(from), Requested: string(to)}
}

// Sources lists every state with an edge into to.
func (m Machine[S]) Sources(to S) []S {
	var out []S
	for from, targets := range m.edges {
		if _, ok := targets[to]; ok {
			out = append(out, from)
		}
	}
	return out
}

func Conflict[S ~string](entity, id string, current, requested S) error {
	return &ConflictError{Entity: entity, ID: id, Current: string(current), Requested: string(requested)}
}
