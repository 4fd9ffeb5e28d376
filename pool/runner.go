package pool

import "github.com/shellpool/shellpool/shell"

// Runner is a persistent worker shell owned by the pool. It is held
// exclusively by one Execution Engine call at a time; the shellpool
// package never touches Shell directly, only through the pool's
// checkout/return machinery in withRunner.
type Runner struct {
	// ID uniquely identifies this runner across the pool's lifetime,
	// for DEBUG trace lines. Error values returned by Run do not
	// include it.
	ID string

	shell   shell.Interface
	errored bool
}
