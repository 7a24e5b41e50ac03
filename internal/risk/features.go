package risk

// Feature vector layout. Fixed shape; the anomaly model is fitted against
// exactly these indices, so additions go at the end.
const (
	FeatAmount = iota
	FeatGasPrice
	FeatSlippage
	FeatRouteLength
	FeatContractInteraction
	FeatTimeSinceLast
	FeatureCount
)

// UnknownTimeSinceLast is the sentinel for "no history supplied". It is
// deliberately distinct from 0, which would mean a simultaneous prior trade.
const UnknownTimeSinceLast = -1.0

// Vector is a fixed-length numeric feature vector for one transaction.
type Vector [FeatureCount]float64

// ExtractFeatures converts a transaction plus optional history into a feature
// vector. Pure and deterministic: time-since-last-activity is measured against
// the transaction's own timestamp, not the wall clock. It never fails; absent
// optional fields default to neutral values and are reported as notes.
func ExtractFeatures(tx *Transaction, history HistoryWindow) (Vector, []Note) {
	var notes []Note

	v := Vector{
		FeatAmount:      tx.Amount,
		FeatGasPrice:    tx.GasPrice,
		FeatSlippage:    tx.Slippage,
		FeatRouteLength: float64(tx.RouteLength),
	}
	if tx.ContractInteraction {
		v[FeatContractInteraction] = 1
	}
	if tx.RouteLength == 0 {
		// A route of zero hops means the field was not populated; a direct
		// swap is one hop.
		v[FeatRouteLength] = 1
		notes = append(notes, Note{Field: "routeLength", Message: "missing route length defaulted to 1"})
	}

	v[FeatTimeSinceLast] = UnknownTimeSinceLast
	if len(history) > 0 {
		last := history[0].Timestamp
		for _, h := range history[1:] {
			if h.Timestamp.After(last) {
				last = h.Timestamp
			}
		}
		if tx.Timestamp.IsZero() {
			notes = append(notes, Note{Field: "timestamp", Message: "missing timestamp; time-since-last-activity unavailable"})
		} else {
			gap := tx.Timestamp.Sub(last).Seconds()
			if gap < 0 {
				gap = 0
			}
			v[FeatTimeSinceLast] = gap
		}
	}

	return v, notes
}
