package domain

// DecideEligibility applies the checkpoint rule to the captured samples.
//
// The result is Unknown until the 30m sample exists. A 30m price below the
// threshold vetoes the market whatever the earlier samples said; otherwise
// the market is eligible when any captured sample reached the threshold.
func DecideEligibility(samples [numCheckpoints]*Checkpoint, thresholdCents int) Eligibility {
	last := samples[Checkpoint30m]
	if last == nil {
		return EligibilityUnknown
	}
	if last.PriceCents < thresholdCents {
		return EligibilityIneligible
	}
	for _, s := range samples {
		if s != nil && s.PriceCents >= thresholdCents {
			return EligibilityEligible
		}
	}
	return EligibilityIneligible
}

// VolumeVeto reports whether trailing dollar volume is below the floor.
// A zero floor disables the check.
func VolumeVeto(volumeUSD, floorUSD float64) bool {
	return floorUSD > 0 && volumeUSD < floorUSD
}
