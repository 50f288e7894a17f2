package domain

// Decision is the outcome of reconciling a local order against the exchange.
type Decision struct {
	Status         OrderStatus
	FilledCount    int
	FillPriceCents int
	Changed        bool   // anything differs from the local record
	Unresolved     bool   // the exchange lost the order and no size is recoverable
	Inferred       bool   // fill count taken from the local record, not the exchange
	Reason         string // short explanation for logs
}

// Reconcile turns an exchange status lookup into an authoritative decision
// for one order. report is nil when the exchange answered "not found".
//
// Rules:
//   - a terminal local order never changes;
//   - "not found" means filled only when the local record knows the size;
//   - "executed" without a fill count falls back to the local size;
//   - fill counts only grow and never exceed the requested size;
//   - statuses only advance toward filled/cancelled.
func Reconcile(last Order, report *OrderReport) Decision {
	keep := Decision{
		Status:         last.Status,
		FilledCount:    last.FilledCount,
		FillPriceCents: last.FillPriceCents,
	}
	if last.Status.IsTerminal() {
		keep.Reason = "already terminal"
		return keep
	}

	if report == nil {
		if last.RequestedSize <= 0 {
			keep.Unresolved = true
			keep.Reason = "not found on exchange and size unknown"
			return keep
		}
		return finish(last, Decision{
			Status:         StatusFilled,
			FilledCount:    last.RequestedSize,
			FillPriceCents: last.EffectiveFillPrice(),
			Inferred:       true,
			Reason:         "not found on exchange; inferred filled from local record",
		})
	}

	filled := max(report.FilledCount, last.FilledCount)
	if last.RequestedSize > 0 {
		filled = min(filled, last.RequestedSize)
	}
	price := last.EffectiveFillPrice()
	if report.FillPriceCents > 0 {
		price = report.FillPriceCents
	}

	d := Decision{FilledCount: filled, FillPriceCents: price}
	switch report.State {
	case ReportExecuted:
		d.Status = StatusFilled
		d.Reason = "executed"
		if report.FilledCount == 0 {
			if last.RequestedSize <= 0 {
				keep.Unresolved = true
				keep.Reason = "executed without fill count and size unknown"
				return keep
			}
			d.FilledCount = last.RequestedSize
			d.Inferred = true
			d.Reason = "executed without fill count; size from local record"
		}
	case ReportCanceled:
		d.Status = StatusCancelled
		d.Reason = "canceled"
	case ReportResting:
		switch {
		case last.RequestedSize > 0 && filled >= last.RequestedSize:
			d.Status = StatusFilled
		case filled > 0:
			d.Status = StatusPartiallyFilled
		default:
			d.Status = StatusPending
		}
		d.Reason = "resting"
	default:
		d.Status = last.Status
		d.Reason = "unrecognised exchange state"
	}
	if filled == 0 && d.Status != StatusFilled {
		d.FillPriceCents = last.FillPriceCents
	}
	return finish(last, d)
}

// finish enforces monotonic status and computes Changed.
func finish(last Order, d Decision) Decision {
	if d.Status.rank() < last.Status.rank() {
		d.Status = last.Status
	}
	d.Changed = d.Status != last.Status ||
		d.FilledCount != last.FilledCount ||
		d.FillPriceCents != last.FillPriceCents
	return d
}
