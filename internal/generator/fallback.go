package generator

import "github.com/p-n-ai/curriculum-ai/internal/lesson"

// FallbackContent is the fixed lesson body used when model output cannot be
// recovered. Each call returns a fresh value.
func FallbackContent() lesson.Content {
	return lesson.Content{
		Title: "Content Unavailable",
		Sections: []lesson.Section{
			{
				Title: "Content Unavailable",
				Content: "The lesson content could not be generated automatically. " +
					"Please review the attached lesson document, or ask your teacher to regenerate this lesson.",
				KeyPoints: []string{
					"Automatic content generation did not produce a usable result.",
					"The original lesson document is still available.",
				},
			},
		},
		KeyTerms: []lesson.KeyTerm{
			{
				Term:       "Lesson document",
				Definition: "The file uploaded by your teacher that this lesson is based on.",
			},
		},
	}
}

// FallbackQuiz is the fixed two-question quiz used when the quiz stage fails.
// Each call returns a fresh value.
func FallbackQuiz() lesson.Quiz {
	return lesson.Quiz{
		Questions: []lesson.Question{
			{
				Question:      "What is the main topic of this lesson?",
				Options:       []string{"The lesson title topic", "An unrelated topic", "None of the above", "All of the above"},
				CorrectAnswer: 0,
				Explanation:   "This lesson focuses on the topic named in its title.",
			},
			{
				Question:      "Where can you find the full lesson material?",
				Options:       []string{"In the lesson document", "Nowhere", "In another class", "In the quiz"},
				CorrectAnswer: 0,
				Explanation:   "The uploaded lesson document contains the full material.",
			},
		},
	}
}
