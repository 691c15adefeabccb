// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package planner finds the cheapest sequence of image transformations
// from an initial tag set to a goal, using a bounded best-first search
// over a caller-supplied transition catalog.
package planner

import (
	"container/heap"
	"fmt"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
)

// Task is one transformation the executor knows how to run. The planner
// treats tasks as opaque labels.
type Task interface {
	Name() string
}

// Transition is one candidate rewrite of a tag set.
type Transition struct {
	Task Task
	// Weight is the task cost in [0..100], cheaper is better.
	Weight int
	// Out is the tag set after running the task.
	Out Tags
}

// Transitions enumerates the applicable transitions for a tag set, in
// deterministic order.
type Transitions func(Tags) []Transition

// Step is one executed transition of a finished plan.
type Step struct {
	In     Tags
	Task   Task
	Out    Tags
	Weight int
}

// node is a search state with its path back to the start.
type node struct {
	tags     Tags
	weight   int
	stepCost int
	depth    int
	seq      int
	parent   *node
	task     Task
}

// queue is the priority queue: cheapest first, ties broken by insertion
// order.
type queue []*node

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].weight != q[j].weight {
		return q[i].weight < q[j].weight
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int)  { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) {
	*q = append(*q, x.(*node))
}
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// Search returns the cheapest plan from itags to goal reachable within
// maxDepth transitions, or an ErrNoPlan error when the search space is
// exhausted.
func Search(transitions Transitions, itags Tags, goal Goal, maxDepth int) ([]Step, error) {
	var (
		q    queue
		seq  int
		best = make(map[Tags]int)
	)

	push := func(n *node) {
		n.seq = seq
		seq++
		heap.Push(&q, n)
	}
	push(&node{tags: itags})

	for q.Len() > 0 {
		n := heap.Pop(&q).(*node)

		// A cheaper path to this state was already expanded.
		if w, ok := best[n.tags]; ok && w < n.weight {
			continue
		}
		best[n.tags] = n.weight

		if n.tags.Satisfies(goal) {
			return reconstruct(n), nil
		}
		if n.depth >= maxDepth {
			continue
		}

		for _, tr := range transitions(n.tags) {
			w := n.weight + tr.Weight
			if bw, ok := best[tr.Out]; ok && bw <= w {
				continue
			}
			push(&node{
				tags:     tr.Out,
				weight:   w,
				stepCost: tr.Weight,
				depth:    n.depth + 1,
				parent:   n,
				task:     tr.Task,
			})
		}
	}

	return nil, fmt.Errorf("%w: no sequence of transformations reaches %v from %v within %d steps",
		errkind.ErrNoPlan, goal.Have, itags, maxDepth)
}

func reconstruct(n *node) []Step {
	var steps []Step
	for ; n.parent != nil; n = n.parent {
		steps = append([]Step{{In: n.parent.tags, Task: n.task, Out: n.tags, Weight: n.stepCost}}, steps...)
	}
	return steps
}

// TotalWeight sums the step weights of a plan.
func TotalWeight(plan []Step) int {
	total := 0
	for _, s := range plan {
		total += s.Weight
	}
	return total
}
