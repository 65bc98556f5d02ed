package jobs

import (
	"context"
	"fmt"
)

// StageFunc is the first stage of a chain
type StageFunc[T any] func(ctx context.Context, p *Progress) (T, error)

// ThenFunc is a later stage of a chain; in is the previous stage's result
type ThenFunc[A, B any] func(ctx context.Context, p *Progress, in A) (B, error)

// SequenceStage is one untyped stage of a Sequence
type SequenceStage struct {
	Name string
	Run  func(ctx context.Context, p *Progress, in interface{}) (interface{}, error)
}

// Chain builds a two-stage Work: second runs only after first succeeds and
// receives exactly first's result. If first fails the chain fails with that
// error and second is never invoked. Both stages share one ProgressSink; a
// marker chunk is written once between them.
func Chain[A, B any](firstName string, first StageFunc[A], secondName string, second ThenFunc[A, B]) Work {
	return Sequence(
		SequenceStage{
			Name: firstName,
			Run: func(ctx context.Context, p *Progress, _ interface{}) (interface{}, error) {
				return first(ctx, p)
			},
		},
		SequenceStage{
			Name: secondName,
			Run: func(ctx context.Context, p *Progress, in interface{}) (interface{}, error) {
				a, _ := in.(A)
				return second(ctx, p, a)
			},
		},
	)
}

// Sequence runs stages in order, feeding each result into the next stage.
// The first failure ends the sequence; later stages never start.
func Sequence(stages ...SequenceStage) Work {
	return func(ctx context.Context, p *Progress) (interface{}, error) {
		var prev interface{}
		for i, stage := range stages {
			p.enterStage(i, stage.Name)

			out, err := stage.Run(ctx, p, prev)
			if err != nil {
				return nil, err
			}

			if i < len(stages)-1 {
				p.marker(fmt.Sprintf("stage %d complete", i+1))
			}
			prev = out
		}
		return prev, nil
	}
}
