package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONBlobWholeObject(t *testing.T) {
	require.Equal(t, `{"a":1}`, ExtractJSONBlob(`{"a":1}`))
}

func TestExtractJSONBlobStripsFences(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	require.Equal(t, `{"a": 1}`, ExtractJSONBlob(in))
}

func TestExtractJSONBlobInsideProse(t *testing.T) {
	in := `Sure, here is the result: {"status": "pass", "reasons": []} hope that helps!`
	require.Equal(t, `{"status": "pass", "reasons": []}`, ExtractJSONBlob(in))
}

func TestExtractJSONBlobUnterminated(t *testing.T) {
	require.Equal(t, "", ExtractJSONBlob(`{"a": [1, 2,`))
}

func TestExtractJSONBlobMismatchedBracketsReset(t *testing.T) {
	in := `{"broken": ] oops {"b": 2}`
	require.Equal(t, `{"b": 2}`, ExtractJSONBlob(in))
}

func TestExtractJSONBlobFirstValidCandidateWins(t *testing.T) {
	in := `{"first": 1} and then {"second": 2}`
	require.Equal(t, `{"first": 1}`, ExtractJSONBlob(in))
}

func TestExtractJSONBlobArray(t *testing.T) {
	in := `noise [1, 2, 3] noise`
	require.Equal(t, `[1, 2, 3]`, ExtractJSONBlob(in))
}

func TestExtractJSONBlobNothing(t *testing.T) {
	require.Equal(t, "", ExtractJSONBlob("no json here"))
	require.Equal(t, "", ExtractJSONBlob(""))
}

type seqGenerator struct {
	responses []string
	err       error
	calls     int
}

func (s *seqGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func TestAskJSONNilGeneratorReturnsDefault(t *testing.T) {
	def := map[string]any{"status": "pass"}
	out := AskJSON(context.Background(), nil, "prompt", def)
	require.Equal(t, def, out)

	out = AskJSON(context.Background(), nil, "prompt", nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestAskJSONRetriesWithStrictPrompt(t *testing.T) {
	gen := &seqGenerator{responses: []string{
		"I cannot answer in JSON, sorry.",
		`{"status": "pass"}`,
	}}
	out := AskJSON(context.Background(), gen, "prompt", nil)
	require.Equal(t, 2, gen.calls)
	require.Equal(t, "pass", out["status"])
}

func TestAskJSONModelFailureReturnsDefault(t *testing.T) {
	gen := &seqGenerator{err: errors.New("down")}
	def := map[string]any{"missing": []any{}}
	out := AskJSON(context.Background(), gen, "prompt", def)
	require.Equal(t, def, out)
	require.Equal(t, 2, gen.calls)
}

func TestAskJSONFirstTrySucceeds(t *testing.T) {
	gen := &seqGenerator{responses: []string{"```json\n{\"ok\": true}\n```"}}
	out := AskJSON(context.Background(), gen, "prompt", nil)
	require.Equal(t, 1, gen.calls)
	require.Equal(t, true, out["ok"])
}
