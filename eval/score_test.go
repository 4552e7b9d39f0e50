package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictForScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  Verdict
	}{
		{"perfect", 1.0, VerdictPass},
		{"at pass threshold", 0.8, VerdictPass},
		{"just below pass", 0.79, VerdictBorderline},
		{"at borderline threshold", 0.6, VerdictBorderline},
		{"just below borderline", 0.59, VerdictFail},
		{"zero", 0.0, VerdictFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerdictForScore(tt.score))
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-0.5))
	assert.Equal(t, 1.0, ClampScore(1.7))
	assert.Equal(t, 0.42, ClampScore(0.42))
	assert.Equal(t, 0.0, ClampScore(math.NaN()))
}

func TestValidateScore(t *testing.T) {
	require.NoError(t, ValidateScore(0.0))
	require.NoError(t, ValidateScore(1.0))
	require.NoError(t, ValidateScore(0.5))
	require.Error(t, ValidateScore(-0.01))
	require.Error(t, ValidateScore(1.01))
	require.Error(t, ValidateScore(math.NaN()))
}

func TestScored_ClampsAndDerivesVerdict(t *testing.T) {
	s := scored(1.5, []string{"hit"}, nil)
	assert.Equal(t, 1.0, s.Score)
	assert.Equal(t, VerdictPass, s.Verdict)

	s = scored(-0.3, nil, []string{"miss"})
	assert.Equal(t, 0.0, s.Score)
	assert.Equal(t, VerdictFail, s.Verdict)
}

func TestFailScore(t *testing.T) {
	s := failScore("something broke")
	assert.Equal(t, 0.0, s.Score)
	assert.Equal(t, VerdictFail, s.Verdict)
	assert.Equal(t, []string{"something broke"}, s.Misses)
}
