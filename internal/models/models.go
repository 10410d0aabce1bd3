package models

import (
	"fmt"
	"time"
)

// JobStatus is the aggregate status of a hiring campaign
type JobStatus string

const (
	JobDraft               JobStatus = "draft"
	JobPublished           JobStatus = "published"
	JobApplicationsOpen    JobStatus = "applications_open"
	JobApplicationsClosed  JobStatus = "applications_closed"
	JobInterviewsActive    JobStatus = "interviews_active"
	JobInterviewsCompleted JobStatus = "interviews_completed"
	JobCompleted           JobStatus = "completed"
	JobCancelled           JobStatus = "cancelled"
	JobOffersSent          JobStatus = "offers_sent"
)

// ApplicationStatus is the position of an application in the hiring lifecycle
type ApplicationStatus string

const (
	StatusApplied            ApplicationStatus = "applied"
	StatusShortlisted        ApplicationStatus = "shortlisted"
	StatusInterviewScheduled ApplicationStatus = "interview_scheduled"
	StatusInterviewCompleted ApplicationStatus = "interview_completed"
	StatusSelected           ApplicationStatus = "selected"
	StatusRejected           ApplicationStatus = "rejected"
	StatusOfferSent          ApplicationStatus = "offer_sent"
)

// AcceptsApplications reports whether new applications may still be recorded
func (s JobStatus) AcceptsApplications() bool {
	return s == JobPublished || s == JobApplicationsOpen
}

// PastShortlisting reports whether shortlisting has already run (or can no longer run) for the job
func (s JobStatus) PastShortlisting() bool {
	switch s {
	case JobInterviewsActive, JobInterviewsCompleted, JobCompleted, JobOffersSent, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is the aggregate root of a hiring campaign
type Job struct {
	ID           string   `json:"id"`
	HostID       string   `json:"host_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`

	TargetApplications     int `json:"target_applications"`
	MaxCandidatesShortlist int `json:"max_candidates_shortlist"`
	FinalSelectionCount    int `json:"final_selection_count"`
	CurrentApplications    int `json:"current_applications"`

	Status                JobStatus `json:"status"`
	ShortlistedCandidates []string  `json:"shortlisted_candidates"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResumeFeedback is the structured output of resume scoring
type ResumeFeedback struct {
	SkillsMatch     int      `json:"skills_match"`
	ExperienceMatch int      `json:"experience_match"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Summary         string   `json:"summary,omitempty"`
}

// InterviewFeedback is the structured output of interview scoring
type InterviewFeedback struct {
	CommunicationSkills int    `json:"communication_skills"`
	TechnicalKnowledge  int    `json:"technical_knowledge"`
	ProblemSolving      int    `json:"problem_solving"`
	Confidence          int    `json:"confidence"`
	Summary             string `json:"summary,omitempty"`
}

// Application is one candidate's application to one job
type Application struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	UserID         string `json:"user_id"`
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`

	ATSScore       int            `json:"ats_score"` // 0-100
	ResumeFeedback ResumeFeedback `json:"resume_feedback"`

	VoiceInterviewScore     *int              `json:"voice_interview_score,omitempty"` // 0-100
	VoiceInterviewCompleted bool              `json:"voice_interview_completed"`
	InterviewFeedback       InterviewFeedback `json:"interview_feedback"`

	FinalScore int               `json:"final_score"` // 0-100
	Status     ApplicationStatus `json:"status"`
	Ranking    int               `json:"ranking"` // 1-based, 0 when unranked

	ShortlistEmailSent bool `json:"shortlist_email_sent"`
	RejectionEmailSent bool `json:"rejection_email_sent"`
	OfferEmailSent     bool `json:"offer_email_sent"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OfferDetails describes the offer sent to a selected candidate
type OfferDetails struct {
	Position  string `json:"position"`
	Salary    string `json:"salary,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ShortlistOutcome summarizes one shortlisting run for the host
type ShortlistOutcome struct {
	JobID               string   `json:"job_id"`
	Skipped             bool     `json:"skipped"`
	Shortlisted         []string `json:"shortlisted"`
	Rejected            []string `json:"rejected"`
	NotificationsSent   int      `json:"notifications_sent"`
	NotificationsFailed int      `json:"notifications_failed"`
}

// Summary renders the outcome the way hosts see it
func (o ShortlistOutcome) Summary() string {
	if o.Skipped {
		return "shortlisting already done"
	}
	return fmt.Sprintf("%d candidates shortlisted, %d notifications failed",
		len(o.Shortlisted), o.NotificationsFailed)
}
