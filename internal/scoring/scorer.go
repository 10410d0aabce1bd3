package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fmuoria/shortlist-agent/internal/llm"
	"github.com/fmuoria/shortlist-agent/internal/models"
)

// ResumeInput is what the resume scorer sees about one applicant
type ResumeInput struct {
	ResumeText      string
	JobTitle        string
	JobDescription  string
	JobRequirements []string
}

// ResumeResult is the ATS score plus structured feedback
type ResumeResult struct {
	ATSScore int
	Feedback models.ResumeFeedback
}

// InterviewInput is what the interview scorer sees about one completed call
type InterviewInput struct {
	Transcript string
	Questions  []string
	JobTitle   string
}

// InterviewResult is the overall interview performance plus its breakdown
type InterviewResult struct {
	OverallPerformance int
	Feedback           models.InterviewFeedback
}

// ResumeScorer rates a resume against a job
type ResumeScorer interface {
	Score(ctx context.Context, in ResumeInput) (ResumeResult, error)
}

// InterviewScorer rates a voice interview transcript
type InterviewScorer interface {
	Score(ctx context.Context, in InterviewInput) (InterviewResult, error)
}

// LLMResumeScorer evaluates resumes using an LLM
type LLMResumeScorer struct {
	llmClient llm.Generator
}

// NewResumeScorer creates a new resume scorer
func NewResumeScorer(llmClient llm.Generator) *LLMResumeScorer {
	return &LLMResumeScorer{llmClient: llmClient}
}

// Score evaluates a resume against the job description and requirements
func (s *LLMResumeScorer) Score(ctx context.Context, in ResumeInput) (ResumeResult, error) {
	prompt := buildResumePrompt(in)

	response, err := s.llmClient.GenerateContent(ctx, prompt)
	if err != nil {
		return ResumeResult{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	var parsed struct {
		ATSScore        int      `json:"ats_score"`
		SkillsMatch     int      `json:"skills_match"`
		ExperienceMatch int      `json:"experience_match"`
		Strengths       []string `json:"strengths"`
		Weaknesses      []string `json:"weaknesses"`
		Summary         string   `json:"summary"`
	}
	if err := parseJSON(response, &parsed); err != nil {
		return ResumeResult{}, fmt.Errorf("failed to parse resume score: %w", err)
	}

	return ResumeResult{
		ATSScore: Clamp(parsed.ATSScore),
		Feedback: models.ResumeFeedback{
			SkillsMatch:     Clamp(parsed.SkillsMatch),
			ExperienceMatch: Clamp(parsed.ExperienceMatch),
			Strengths:       parsed.Strengths,
			Weaknesses:      parsed.Weaknesses,
			Summary:         parsed.Summary,
		},
	}, nil
}

// LLMInterviewScorer evaluates interview transcripts using an LLM
type LLMInterviewScorer struct {
	llmClient llm.Generator
}

// NewInterviewScorer creates a new interview scorer
func NewInterviewScorer(llmClient llm.Generator) *LLMInterviewScorer {
	return &LLMInterviewScorer{llmClient: llmClient}
}

// Score evaluates an interview transcript against the questions that were asked
func (s *LLMInterviewScorer) Score(ctx context.Context, in InterviewInput) (InterviewResult, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return InterviewResult{}, fmt.Errorf("interview transcript is empty")
	}

	response, err := s.llmClient.GenerateContent(ctx, buildInterviewPrompt(in))
	if err != nil {
		return InterviewResult{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	var parsed struct {
		OverallPerformance  int    `json:"overall_performance"`
		CommunicationSkills int    `json:"communication_skills"`
		TechnicalKnowledge  int    `json:"technical_knowledge"`
		ProblemSolving      int    `json:"problem_solving"`
		Confidence          int    `json:"confidence"`
		Summary             string `json:"summary"`
	}
	if err := parseJSON(response, &parsed); err != nil {
		return InterviewResult{}, fmt.Errorf("failed to parse interview score: %w", err)
	}

	return InterviewResult{
		OverallPerformance: Clamp(parsed.OverallPerformance),
		Feedback: models.InterviewFeedback{
			CommunicationSkills: Clamp(parsed.CommunicationSkills),
			TechnicalKnowledge:  Clamp(parsed.TechnicalKnowledge),
			ProblemSolving:      Clamp(parsed.ProblemSolving),
			Confidence:          Clamp(parsed.Confidence),
			Summary:             parsed.Summary,
		},
	}, nil
}

// buildResumePrompt creates the ATS scoring prompt for the LLM
func buildResumePrompt(in ResumeInput) string {
	var sb strings.Builder

	sb.WriteString("You are an applicant tracking system evaluating a resume against a job posting.\n\n")

	sb.WriteString("## JOB\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", sanitizeUTF8(in.JobTitle)))
	sb.WriteString(fmt.Sprintf("Description: %s\n\n", sanitizeUTF8(in.JobDescription)))
	if len(in.JobRequirements) > 0 {
		sb.WriteString("Requirements:\n")
		for _, req := range in.JobRequirements {
			sb.WriteString(fmt.Sprintf("- %s\n", sanitizeUTF8(req)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## RESUME\n")
	sb.WriteString(sanitizeUTF8(in.ResumeText))
	sb.WriteString("\n\n")

	sb.WriteString("Respond with ONLY this JSON object:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "ats_score": <0-100 overall match>,` + "\n")
	sb.WriteString(`  "skills_match": <0-100>,` + "\n")
	sb.WriteString(`  "experience_match": <0-100>,` + "\n")
	sb.WriteString(`  "strengths": ["<strength>", ...],` + "\n")
	sb.WriteString(`  "weaknesses": ["<gap>", ...],` + "\n")
	sb.WriteString(`  "summary": "<two sentences>"` + "\n")
	sb.WriteString("}\n")

	return sb.String()
}

// buildInterviewPrompt creates the interview evaluation prompt for the LLM
func buildInterviewPrompt(in InterviewInput) string {
	var sb strings.Builder

	sb.WriteString("You are evaluating a candidate's voice interview for the role of ")
	sb.WriteString(sanitizeUTF8(in.JobTitle))
	sb.WriteString(".\n\n")

	if len(in.Questions) > 0 {
		sb.WriteString("## QUESTIONS ASKED\n")
		for i, q := range in.Questions {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, sanitizeUTF8(q)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## TRANSCRIPT\n")
	sb.WriteString(sanitizeUTF8(in.Transcript))
	sb.WriteString("\n\n")

	sb.WriteString("Respond with ONLY this JSON object, every score 0-100:\n")
	sb.WriteString(`{"overall_performance": n, "communication_skills": n, "technical_knowledge": n, "problem_solving": n, "confidence": n, "summary": "<two sentences>"}` + "\n")

	return sb.String()
}

// parseJSON extracts the first JSON object from an LLM response
func parseJSON(response string, v any) error {
	// Find JSON in response (in case there's extra text)
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return fmt.Errorf("no JSON found in response")
	}

	if err := json.Unmarshal([]byte(response[startIdx:endIdx+1]), v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// sanitizeUTF8 replaces invalid UTF-8 sequences so the request payload stays valid
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
