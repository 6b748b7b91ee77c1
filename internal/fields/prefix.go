package fields

import (
	"fmt"
	"strconv"
)

const subLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// QuestionPrefix returns the spoken/displayed prefix of the field at index i.
// Fields sharing a GroupLabel with at least one other field are numbered by the
// group and a letter ("Question 3A", "Question 3B"); all others by position.
func QuestionPrefix(list []Field, i int) string {
	if i < 0 || i >= len(list) {
		return ""
	}
	field := list[i]
	positional := fmt.Sprintf("Question %d", i+1)
	if field.GroupLabel == "" {
		return positional
	}

	sub, size := -1, 0
	for j, f := range list {
		if f.GroupLabel != field.GroupLabel {
			continue
		}
		if j == i {
			sub = size
		}
		size++
	}
	if size <= 1 {
		return positional
	}

	letter := strconv.Itoa(sub + 1)
	if sub < len(subLetters) {
		letter = string(subLetters[sub])
	}
	return fmt.Sprintf("Question %s%s", field.GroupLabel, letter)
}
