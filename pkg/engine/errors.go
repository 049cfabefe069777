package engine

import (
	"errors"

	"github.com/blazingsql/engine/pkg/engine/internal/graph"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

var (
	// ErrEmptyPlan is returned by [Engine.ExecutePlan] when the plan does
	// not produce any operator, so there is no result to return.
	ErrEmptyPlan = errors.New("plan has no operators")

	// ErrPostcondition is returned when a query finished without error but
	// did not produce a result.
	ErrPostcondition = errors.New("query produced no result")

	// ErrPrecondition is returned when the inputs of a query do not match
	// each other or the plan does not reduce to a single result.
	ErrPrecondition = graph.ErrPrecondition

	// ErrParse is returned when the plan text is malformed.
	ErrParse = physical.ErrParse
)
