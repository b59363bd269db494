package games

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Question is a single arithmetic task shown to the child.
type Question struct {
	Prompt string
	Answer int
}

// ErrNotANumber is returned by Check when the reply cannot be parsed.
var ErrNotANumber = errors.New("games: answer is not a number")

// Generate produces an arithmetic question sized to the child's age.
//
//   - up to 7 years: addition within 10
//   - 8–10 years: addition/subtraction within 50
//   - 11 and older: also multiplication, operands within 100/12
//
// Age 0 (profile not filled in yet) falls into the easiest bucket.
func Generate(age int) Question {
	switch {
	case age <= 7:
		a, b := rand.Intn(9)+1, rand.Intn(9)+1
		return Question{Prompt: fmt.Sprintf("%d + %d = ?", a, b), Answer: a + b}
	case age <= 10:
		a, b := rand.Intn(49)+1, rand.Intn(49)+1
		if rand.Intn(2) == 0 {
			return Question{Prompt: fmt.Sprintf("%d + %d = ?", a, b), Answer: a + b}
		}
		if a < b {
			a, b = b, a // keep results non-negative for this age group
		}
		return Question{Prompt: fmt.Sprintf("%d - %d = ?", a, b), Answer: a - b}
	default:
		switch rand.Intn(3) {
		case 0:
			a, b := rand.Intn(99)+1, rand.Intn(99)+1
			return Question{Prompt: fmt.Sprintf("%d + %d = ?", a, b), Answer: a + b}
		case 1:
			a, b := rand.Intn(99)+1, rand.Intn(99)+1
			if a < b {
				a, b = b, a
			}
			return Question{Prompt: fmt.Sprintf("%d - %d = ?", a, b), Answer: a - b}
		default:
			a, b := rand.Intn(11)+2, rand.Intn(11)+2
			return Question{Prompt: fmt.Sprintf("%d × %d = ?", a, b), Answer: a * b}
		}
	}
}

// Check parses the child's reply and compares it with the expected answer.
func Check(q Question, reply string) (bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return false, ErrNotANumber
	}
	return n == q.Answer, nil
}
