package stats

// Grade expresses how much a bootstrap Sharpe interval can be trusted.
type Grade string

const (
	High         Grade = "High"
	Medium       Grade = "Medium"
	Low          Grade = "Low"
	Insufficient Grade = "Insufficient"
)

// MinGradeObservations is the smallest return sample that can be graded.
const MinGradeObservations = 30

// Badge is a compact marker for tables.
func (g Grade) Badge() string {
	switch g {
	case High:
		return "++"
	case Medium:
		return "+"
	case Low:
		return "o"
	default:
		return "?"
	}
}

// GradeSharpe grades a bootstrap Sharpe interval computed from n returns.
func GradeSharpe(ci BootstrapResult, n int) Grade {
	switch {
	case n < MinGradeObservations:
		return Insufficient
	case ci.Lower > 0.5 && ci.Width() < 1:
		return High
	case ci.Lower > 0 && ci.Width() < 2:
		return Medium
	default:
		return Low
	}
}

// AfterCorrection drops a grade one step when the adjusted p-value is not
// significant at alpha.
func (g Grade) AfterCorrection(adjusted, alpha float64) Grade {
	if adjusted < alpha {
		return g
	}
	switch g {
	case High:
		return Medium
	case Medium:
		return Low
	}
	return g
}
