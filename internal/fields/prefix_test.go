package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestionPrefix(t *testing.T) {
	list := []Field{
		{Label: "Name"},
		{Label: "Street", GroupLabel: "3"},
		{Label: "City", GroupLabel: "3"},
		{Label: "Zip", GroupLabel: "3"},
		{Label: "Email", GroupLabel: "4"},
	}

	assert.Equal(t, "Question 1", QuestionPrefix(list, 0))
	assert.Equal(t, "Question 3A", QuestionPrefix(list, 1))
	assert.Equal(t, "Question 3B", QuestionPrefix(list, 2))
	assert.Equal(t, "Question 3C", QuestionPrefix(list, 3))
	// A group of one falls back to positional numbering.
	assert.Equal(t, "Question 5", QuestionPrefix(list, 4))
	assert.Equal(t, "", QuestionPrefix(list, 5))
	assert.Equal(t, "", QuestionPrefix(list, -1))
}

func TestQuestionPrefix_PastAlphabet(t *testing.T) {
	list := make([]Field, 28)
	for i := range list {
		list[i] = Field{GroupLabel: "9"}
	}
	assert.Equal(t, "Question 9Z", QuestionPrefix(list, 25))
	assert.Equal(t, "Question 927", QuestionPrefix(list, 26))
}
