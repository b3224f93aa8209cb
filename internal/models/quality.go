package models

// RatingFor buckets a sharpness score into a display rating. Q_min governs
// only this label (spec §4.4); a sharpness below qMin still downgrades to
// Poor or Fair rather than blocking admission.
func RatingFor(sharpness, qMin float64) QualityRating {
	switch {
	case sharpness >= qMin*2:
		return QualityExcellent
	case sharpness >= qMin*1.5:
		return QualityVeryGood
	case sharpness >= qMin:
		return QualityGood
	case sharpness >= qMin*0.5:
		return QualityFair
	default:
		return QualityPoor
	}
}
