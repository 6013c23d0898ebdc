package catalog

// Question is a single multiple-choice item of an assessment.
type Question struct {
	Prompt             string   `json:"prompt"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
}

// Definition is the immutable configuration of one assessment.
type Definition struct {
	ID               string     `json:"-"`
	Name             string     `json:"name"`
	PassingThreshold int        `json:"passingThreshold"`
	Questions        []Question `json:"questions"`
}

// TotalQuestions returns the number of questions in the assessment.
func (d Definition) TotalQuestions() int {
	return len(d.Questions)
}

// Score counts the answers matching the correct option. Unanswered and out of range
// question indices count as incorrect.
func (d Definition) Score(answers map[int]int) int {
	score := 0
	for idx, question := range d.Questions {
		selected, ok := answers[idx]
		if ok && selected == question.CorrectOptionIndex {
			score++
		}
	}
	return score
}

// Passed reports whether the score reaches the passing threshold.
func (d Definition) Passed(score int) bool {
	return score >= d.PassingThreshold
}

// ValidAnswer reports whether the option index exists for the question index.
func (d Definition) ValidAnswer(questionIndex, optionIndex int) bool {
	if questionIndex < 0 || questionIndex >= len(d.Questions) {
		return false
	}
	return optionIndex >= 0 && optionIndex < len(d.Questions[questionIndex].Options)
}

func (d Definition) clone() Definition {
	questions := make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		options := make([]string, len(q.Options))
		copy(options, q.Options)
		questions[i] = Question{Prompt: q.Prompt, Options: options, CorrectOptionIndex: q.CorrectOptionIndex}
	}
	d.Questions = questions
	return d
}
