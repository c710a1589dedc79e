package risk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens/MintAAA/report/summary", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
}

func TestScore(t *testing.T) {
	c := serve(t, http.StatusOK, `{"score": 1, "risks": [{"name":"Mutable metadata","level":"warn","score":1}]}`)

	score, err := c.Score(context.Background(), "MintAAA")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestScoreZeroIsValid(t *testing.T) {
	c := serve(t, http.StatusOK, `{"score": 0}`)

	score, err := c.Score(context.Background(), "MintAAA")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestScoreMissing(t *testing.T) {
	c := serve(t, http.StatusOK, `{"risks": []}`)

	_, err := c.Score(context.Background(), "MintAAA")
	assert.ErrorIs(t, err, ErrNoScore)
}

func TestScoreHTTPError(t *testing.T) {
	c := serve(t, http.StatusBadGateway, `oops`)

	_, err := c.Score(context.Background(), "MintAAA")
	assert.Error(t, err)
}
