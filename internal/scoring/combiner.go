package scoring

// Weights are expressed in tenths so the blend stays in integer arithmetic:
// 0.6 for the resume, 0.4 for the interview.
const (
	ResumeWeight    = 6
	InterviewWeight = 4
	weightDivisor   = ResumeWeight + InterviewWeight

	MinScore = 0
	MaxScore = 100
)

// Clamp bounds a raw score to [0, 100]
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Combine blends the ATS score with the interview score into a final score.
// When the interview has not been scored yet the ATS score is returned unchanged,
// so a pending interview never counts as zero.
func Combine(atsScore int, interviewScore *int) int {
	ats := Clamp(atsScore)
	if interviewScore == nil {
		return ats
	}
	interview := Clamp(*interviewScore)

	// adding half the divisor before truncating rounds half up
	blended := ats*ResumeWeight + interview*InterviewWeight
	return Clamp((blended + weightDivisor/2) / weightDivisor)
}
