package workflow

import (
	"context"
	"fmt"
	"sort"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// State names a position in the workflow.
type State string

// Workflow states.
const (
	Start            State = "START"
	RubricAdapted    State = "RubricAdapted"
	ReportChecked    State = "ReportChecked"
	FeedbackComposed State = "FeedbackComposed"
	End              State = "END"
	Failed           State = "Failed"
)

// Stage names, as reported in errors and events.
const (
	StageRubricAdapter    = "RubricAdapter"
	StageReportChecker    = "ReportChecker"
	StageFeedbackComposer = "FeedbackComposer"
)

// StageFunc derives the next piece of state. It must not mutate its input.
type StageFunc func(ctx context.Context, state RunState) (Patch, error)

// Condition selects a transition.
type Condition func(RunState) bool

// Transition is one outgoing edge. A nil When always matches.
type Transition struct {
	Label string
	When  Condition
	To    State
}

// Node is a state reached by running a stage.
type Node struct {
	State State
	Stage string
	Run   StageFunc
	// Produces reports whether the stage output is present in the state.
	Produces func(RunState) bool
}

// Graph is the directed acyclic state machine a run walks.
type Graph struct {
	nodes       map[State]*Node
	transitions map[State][]Transition
}

// Stages bundles the three stage functions.
type Stages struct {
	RubricAdapter    StageFunc
	ReportChecker    StageFunc
	FeedbackComposer StageFunc
}

func wantsFeedback(s RunState) bool { return !s.SkipFeedback }

func skipsFeedback(s RunState) bool { return s.SkipFeedback }

// Transitions is the declarative edge table:
// START → RubricAdapted → ReportChecked → {FeedbackComposed | END}.
func Transitions() map[State][]Transition {
	return map[State][]Transition{
		Start:         {{To: RubricAdapted}},
		RubricAdapted: {{To: ReportChecked}},
		ReportChecked: {
			{Label: "feedback", When: wantsFeedback, To: FeedbackComposed},
			{Label: "skip_feedback", When: skipsFeedback, To: End},
		},
		FeedbackComposed: {{To: End}},
	}
}

// NewReviewGraph wires stages into the review workflow.
func NewReviewGraph(stages Stages) (*Graph, error) {
	nodes := []*Node{
		{
			State:    RubricAdapted,
			Stage:    StageRubricAdapter,
			Run:      stages.RubricAdapter,
			Produces: func(s RunState) bool { return s.StructuredCriteria != nil },
		},
		{
			State:    ReportChecked,
			Stage:    StageReportChecker,
			Run:      stages.ReportChecker,
			Produces: func(s RunState) bool { return s.CheckResults != nil },
		},
		{
			State:    FeedbackComposed,
			Stage:    StageFeedbackComposer,
			Run:      stages.FeedbackComposer,
			Produces: func(s RunState) bool { return s.Feedback != nil },
		},
	}
	return NewGraph(nodes, Transitions())
}

// NewGraph validates nodes and transitions: every target must be a node or
// END, every node must be reachable from START, and the graph must be acyclic.
func NewGraph(nodes []*Node, transitions map[State][]Transition) (*Graph, error) {
	g := &Graph{
		nodes:       make(map[State]*Node, len(nodes)),
		transitions: transitions,
	}

	for _, node := range nodes {
		if node == nil || node.Run == nil {
			return nil, rcerrors.NewValidationError("graph", "node without stage function", nil)
		}
		if node.State == Start || node.State == End || node.State == Failed {
			return nil, rcerrors.NewValidationError("graph", fmt.Sprintf("reserved state %q used as node", node.State), nil)
		}
		if _, exists := g.nodes[node.State]; exists {
			return nil, rcerrors.NewValidationError("graph", fmt.Sprintf("duplicate node %q", node.State), nil)
		}
		g.nodes[node.State] = node
	}

	for from, edges := range transitions {
		if from != Start {
			if _, ok := g.nodes[from]; !ok {
				return nil, rcerrors.NewValidationError("graph", fmt.Sprintf("transition from unknown state %q", from), nil)
			}
		}
		if len(edges) == 0 {
			return nil, rcerrors.NewValidationError("graph", fmt.Sprintf("state %q has no outgoing transition", from), nil)
		}
		for _, edge := range edges {
			if edge.To == End {
				continue
			}
			if _, ok := g.nodes[edge.To]; !ok {
				return nil, rcerrors.NewValidationError("graph", fmt.Sprintf("transition to unknown state %q", edge.To), nil)
			}
		}
	}

	if err := g.checkOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkOrder sorts states with Kahn's algorithm starting at START and fails on
// unreachable states or cycles.
func (g *Graph) checkOrder() error {
	indegree := map[State]int{Start: 0, End: 0}
	for state := range g.nodes {
		indegree[state] = 0
	}
	for _, edges := range g.transitions {
		for _, edge := range edges {
			indegree[edge.To]++
		}
	}

	for state, degree := range indegree {
		if state != Start && degree == 0 {
			return rcerrors.NewValidationError("graph", fmt.Sprintf("state %q is unreachable", state), nil)
		}
	}

	queue := []State{Start}
	var order []State
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		var next []State
		for _, edge := range g.transitions[current] {
			indegree[edge.To]--
			if indegree[edge.To] == 0 {
				next = append(next, edge.To)
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		queue = append(queue, next...)
	}

	if len(order) != len(indegree) {
		return rcerrors.NewValidationError("graph", "cycle detected while sorting graph", nil)
	}
	return nil
}

// Node returns the node for state.
func (g *Graph) Node(state State) (*Node, bool) {
	node, ok := g.nodes[state]
	return node, ok
}

// Next evaluates the outgoing transitions of from against s. The first
// matching edge wins; no match is an error.
func (g *Graph) Next(from State, s RunState) (Transition, error) {
	for _, edge := range g.transitions[from] {
		if edge.When == nil || edge.When(s) {
			return edge, nil
		}
	}
	return Transition{}, rcerrors.NewValidationError("graph", fmt.Sprintf("no transition from %q matches", from), nil)
}
