package retry

import "context"

// While runs action for as long as cond holds. The first error, or the
// context ending, stops the loop. Nothing runs when cond is false up front.
func While(ctx context.Context, cond func() bool, action func(context.Context) error) error {
	for cond() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := action(ctx); err != nil {
			return err
		}
	}
	return nil
}
