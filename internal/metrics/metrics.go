// Package metrics exposes client counters over expvar plus a small debug
// HTTP endpoint.
package metrics

import "expvar"

var (
	// Event watcher.
	EventsDelivered = expvar.NewInt("godex_events_delivered")
	EventsDeduped   = expvar.NewInt("godex_events_deduped")
	WatchErrors     = expvar.NewInt("godex_watch_errors")

	// Transaction lifecycle.
	TxSubmitted = expvar.NewInt("godex_tx_submitted")
	TxConfirmed = expvar.NewInt("godex_tx_confirmed")
	TxFailed    = expvar.NewInt("godex_tx_failed")

	// State reconciliation.
	BalanceRefreshes      = expvar.NewInt("godex_balance_refreshes")
	StaleRefreshesDropped = expvar.NewInt("godex_stale_refreshes_dropped")
	BookProjections       = expvar.NewInt("godex_book_projections")
)
