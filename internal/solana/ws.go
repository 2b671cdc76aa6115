package solana

import "context"

// WSClient is a program-log subscription stream.
type WSClient interface {
	// SubscribeLogs streams logs of transactions mentioning the filter's
	// programs. The channel closes when the client closes.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	Close() error
}

// LogsFilter selects the transactions a logs subscription receives.
// An empty Mentions subscribes to every transaction.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one transaction's logs as pushed by logsSubscribe.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       any // transaction error, nil on success

	// Mention is the program the subscription filtered on, when it named
	// exactly one.
	Mention string
}

// Failed reports whether the transaction itself failed on chain.
func (n LogNotification) Failed() bool {
	return n.Err != nil
}
