package ledger

import "fmt"

// RemoteError wraps a node or network fault. It is surfaced to the caller
// and never retried automatically.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

// NotFoundError reports that no deployment exists for a logical contract
// name on the active chain.
type NotFoundError struct {
	Name    string
	ChainID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ledger: no deployment of %q on chain %d", e.Name, e.ChainID)
}
