package games

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// evaluate recomputes the expected answer from the rendered prompt.
func evaluate(t *testing.T, prompt string) int {
	t.Helper()
	fields := strings.Fields(strings.TrimSuffix(prompt, " = ?"))
	require.Len(t, fields, 3)
	a, err := strconv.Atoi(fields[0])
	require.NoError(t, err)
	b, err := strconv.Atoi(fields[2])
	require.NoError(t, err)
	switch fields[1] {
	case "+":
		return a + b
	case "-":
		return a - b
	case "×":
		return a * b
	}
	t.Fatalf("unexpected operator in %q", prompt)
	return 0
}

func TestGenerate_AnswerMatchesPrompt(t *testing.T) {
	for _, age := range []int{0, 6, 7, 8, 10, 11, 14} {
		for i := 0; i < 50; i++ {
			q := Generate(age)
			require.Equal(t, evaluate(t, q.Prompt), q.Answer, "age %d prompt %q", age, q.Prompt)
			require.GreaterOrEqual(t, q.Answer, 0, "age %d prompt %q", age, q.Prompt)
		}
	}
}

func TestGenerate_YoungestStaysWithinTen(t *testing.T) {
	for i := 0; i < 100; i++ {
		q := Generate(6)
		require.Contains(t, q.Prompt, "+")
		require.LessOrEqual(t, q.Answer, 18)
	}
}

func TestCheck(t *testing.T) {
	q := Question{Prompt: "2 + 2 = ?", Answer: 4}

	ok, err := Check(q, "4")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Check(q, "  4 ")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Check(q, "5")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = Check(q, "four")
	require.ErrorIs(t, err, ErrNotANumber)
}
