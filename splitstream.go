package finledger

import (
	"database/sql"
	"sort"
	"time"
)

// Occurrences bounds how many scheduled-transaction expansions the split
// stream materializes, per spec §4.E.
type Occurrences struct {
	// Max is the per-transaction cap. Ignored when Unlimited is set.
	Max int
	// Unlimited expands until the occurrence's post_ts exceeds the range end.
	Unlimited bool
}

// OccurrencesNone ignores scheduled transactions entirely.
var OccurrencesNone = Occurrences{Max: 0}

// OccurrencesUnlimited expands every scheduled transaction to the range end.
var OccurrencesUnlimited = Occurrences{Unlimited: true}

func occurrencesLimit(o Occurrences) int {
	if o.Unlimited {
		return -1
	}
	return o.Max
}

// StreamEntry is one element of the split stream: either a real split
// (Occurrence == 1) or a materialized scheduled occurrence, per spec §4.E.
type StreamEntry struct {
	TransactionID     int64
	Occurrence        int
	SplitID           int64
	Timestamp         time.Time
	InitialTimestamp  time.Time
	Scheduled         *string
	ScenarioID        int64
	CheckNumber       string
	Memo              string
	AccountID         int64
	ScaledQty         int64
	RatioQty          int64
	ScaledValue       int64
	ValueCommodityID  int64
	Reconcile         ReconcileState
	PayeeID           *int64
	PostTS            time.Time
}

// SplitStream is the union of real splits and materialized scheduled
// occurrences described by spec §4.E, grounded on
// original_source/cte_list_splits.rs (there expressed as a recursive CTE;
// here reimplemented as a Go loop driven by recurrence.go's expander, since
// the spec's recurrence grammar has no SQL-native equivalent in
// modernc.org/sqlite).
func (s *Store) SplitStream(r DateRange, scenario int64, occ Occurrences) ([]StreamEntry, error) {
	var out []StreamEntry

	nonRecurring, err := s.nonRecurringSplits(r, scenario)
	if err != nil {
		return nil, err
	}
	out = append(out, nonRecurring...)

	if occurrencesLimit(occ) != 0 {
		scheduled, err := s.scheduledOccurrences(r, scenario, occ)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduled...)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PostTS.Equal(b.PostTS) {
			return a.PostTS.Before(b.PostTS)
		}
		if a.TransactionID != b.TransactionID {
			return a.TransactionID < b.TransactionID
		}
		return a.SplitID < b.SplitID
	})
	return out, nil
}

func (s *Store) nonRecurringSplits(r DateRange, scenario int64) ([]StreamEntry, error) {
	const query = `SELECT t.id, s.id, t.timestamp, t.scenario_id, t.check_number, t.memo,
		        s.account_id, s.scaled_qty, s.ratio_qty, s.scaled_value, s.value_commodity_id,
		        s.reconcile, s.payee_id, s.post_ts
		 FROM transactions t JOIN splits s ON s.transaction_id = t.id
		 WHERE t.scheduled IS NULL
		   AND (t.scenario_id = ? OR t.scenario_id = ?)
		   AND s.post_ts >= ? AND s.post_ts < ?`
	traceQuery("split_stream.non_recurring", query)
	rows, err := s.db.Query(query, ScenarioActual, scenario, formatTime(r.Start), formatTime(r.End))
	if err != nil {
		return nil, storeErr("split stream non-recurring: %v", err)
	}
	defer rows.Close()

	var out []StreamEntry
	for rows.Next() {
		var e StreamEntry
		var ts, postTS string
		var reconcile int
		var payeeID sql.NullInt64
		if err := rows.Scan(&e.TransactionID, &e.SplitID, &ts, &e.ScenarioID, &e.CheckNumber, &e.Memo,
			&e.AccountID, &e.ScaledQty, &e.RatioQty, &e.ScaledValue, &e.ValueCommodityID,
			&reconcile, &payeeID, &postTS); err != nil {
			return nil, storeErr("split stream non-recurring scan: %v", err)
		}
		e.Occurrence = 1
		e.Reconcile = ReconcileState(reconcile)
		if payeeID.Valid {
			e.PayeeID = &payeeID.Int64
		}
		if t, err := parseTime(ts); err == nil {
			e.Timestamp = t
			e.InitialTimestamp = t
		}
		if t, err := parseTime(postTS); err == nil {
			e.PostTS = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scheduledTxn struct {
	id             int64
	timestamp      time.Time
	scheduled      string
	scenarioID     int64
	checkNumber    string
	memo           string
	lastOccurrence *time.Time
}

func (s *Store) scheduledOccurrences(r DateRange, scenario int64, occ Occurrences) ([]StreamEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, scheduled, scenario_id, check_number, memo, last_occurrence
		 FROM transactions
		 WHERE scheduled IS NOT NULL AND (scenario_id = ? OR scenario_id = ?)`,
		ScenarioActual, scenario,
	)
	if err != nil {
		return nil, storeErr("split stream scheduled transactions: %v", err)
	}
	var txns []scheduledTxn
	for rows.Next() {
		var t scheduledTxn
		var ts string
		var lastOcc sql.NullString
		if err := rows.Scan(&t.id, &ts, &t.scheduled, &t.scenarioID, &t.checkNumber, &t.memo, &lastOcc); err != nil {
			rows.Close()
			return nil, storeErr("split stream scheduled transaction scan: %v", err)
		}
		if pt, err := parseTime(ts); err == nil {
			t.timestamp = pt
		}
		if lastOcc.Valid {
			if pt, err := parseTime(lastOcc.String); err == nil {
				t.lastOccurrence = &pt
			}
		}
		txns = append(txns, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	limit := occurrencesLimit(occ)
	var out []StreamEntry
	for _, t := range txns {
		splits, err := s.splitsForTransaction(t.id)
		if err != nil {
			return nil, err
		}
		previous := t.lastOccurrence
		for i := 1; limit < 0 || i <= limit; i++ {
			next, err := NextOccurrence(t.scheduled, t.timestamp, previous)
			if err != nil {
				log.Warn().Err(err).Int64("transaction_id", t.id).Msg("split stream: skipping malformed scheduled rule")
				break
			}
			if next == nil || next.After(r.End) {
				break
			}
			previous = next
			for _, sp := range splits {
				out = append(out, StreamEntry{
					TransactionID:    t.id,
					Occurrence:       i,
					SplitID:          sp.ID,
					Timestamp:        *next,
					InitialTimestamp: t.timestamp,
					Scheduled:        &t.scheduled,
					ScenarioID:       t.scenarioID,
					CheckNumber:      t.checkNumber,
					Memo:             t.memo,
					AccountID:        sp.AccountID,
					ScaledQty:        sp.ScaledQty,
					RatioQty:         sp.RatioQty,
					ScaledValue:      sp.ScaledValue,
					ValueCommodityID: sp.ValueCommodityID,
					Reconcile:        sp.Reconcile,
					PayeeID:          sp.PayeeID,
					PostTS:           *next,
				})
			}
		}
	}
	return out, nil
}

func (s *Store) splitsForTransaction(transactionID int64) ([]Split, error) {
	rows, err := s.db.Query(
		`SELECT id, account_id, scaled_qty, ratio_qty, scaled_value, value_commodity_id, reconcile, payee_id
		 FROM splits WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return nil, storeErr("splits for transaction %d: %v", transactionID, err)
	}
	defer rows.Close()
	var out []Split
	for rows.Next() {
		var sp Split
		var reconcile int
		var payeeID sql.NullInt64
		if err := rows.Scan(&sp.ID, &sp.AccountID, &sp.ScaledQty, &sp.RatioQty, &sp.ScaledValue,
			&sp.ValueCommodityID, &reconcile, &payeeID); err != nil {
			return nil, storeErr("splits for transaction %d scan: %v", transactionID, err)
		}
		sp.TransactionID = transactionID
		sp.Reconcile = ReconcileState(reconcile)
		if payeeID.Valid {
			sp.PayeeID = &payeeID.Int64
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
