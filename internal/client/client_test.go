package client

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// rpcServer answers JSON-RPC calls with canned results keyed by method.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
			result = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetBalanceAndBlockHeight(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"getBalance":     `{"context":{"slot":10},"value":250000000}`,
		"getBlockHeight": `123456`,
	})
	c := NewClient(ClientConfig{RPCEndpoint: srv.URL, Timeout: time.Second}, quietLogger())

	bal, err := c.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(250000000), bal)

	height, err := c.GetBlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), height)
}

func TestGetTokenBalanceSumsAccounts(t *testing.T) {
	account := func(amount uint64) string {
		data := make([]byte, 165)
		binary.LittleEndian.PutUint64(data[64:72], amount)
		return fmt.Sprintf(`{"pubkey":"%s","account":{"data":["%s","base64"],"executable":false,"lamports":2039280,"owner":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","rentEpoch":0}}`,
			solana.NewWallet().PublicKey(), base64.StdEncoding.EncodeToString(data))
	}
	srv := rpcServer(t, map[string]string{
		"getTokenAccountsByOwner": fmt.Sprintf(`{"context":{"slot":1},"value":[%s,%s]}`, account(1500), account(500)),
	})
	c := NewClient(ClientConfig{RPCEndpoint: srv.URL, Timeout: time.Second}, quietLogger())

	bal, err := c.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), bal)
}

func TestGetTokenBalanceSkipsAccountsWithoutData(t *testing.T) {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], 700)
	withData := fmt.Sprintf(`{"pubkey":"%s","account":{"data":["%s","base64"],"executable":false,"lamports":2039280,"owner":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","rentEpoch":0}}`,
		solana.NewWallet().PublicKey(), base64.StdEncoding.EncodeToString(data))
	noData := fmt.Sprintf(`{"pubkey":"%s","account":{"data":null,"executable":false,"lamports":2039280,"owner":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","rentEpoch":0}}`,
		solana.NewWallet().PublicKey())
	short := fmt.Sprintf(`{"pubkey":"%s","account":{"data":["%s","base64"],"executable":false,"lamports":2039280,"owner":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","rentEpoch":0}}`,
		solana.NewWallet().PublicKey(), base64.StdEncoding.EncodeToString(make([]byte, 40)))
	srv := rpcServer(t, map[string]string{
		"getTokenAccountsByOwner": fmt.Sprintf(`{"context":{"slot":1},"value":[%s,%s,%s]}`, noData, withData, short),
	})
	c := NewClient(ClientConfig{RPCEndpoint: srv.URL, Timeout: time.Second}, quietLogger())

	bal, err := c.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(700), bal)
}

func TestGetTokenBalanceNoAccounts(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"getTokenAccountsByOwner": `{"context":{"slot":1},"value":[]}`,
	})
	c := NewClient(ClientConfig{RPCEndpoint: srv.URL, Timeout: time.Second}, quietLogger())

	bal, err := c.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestJitoSendRawTransaction(t *testing.T) {
	sig := solana.Signature{1, 2, 3}
	var gotParams []json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-jito-auth"))
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sendTransaction", req.Method)
		gotParams = req.Params
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"%s"}`, sig.String())
	}))
	defer srv.Close()

	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL, APIKey: "secret"}, quietLogger())
	got, err := jc.SendRawTransaction(context.Background(), []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	require.Len(t, gotParams, 2)
	assert.JSONEq(t, `"3q0="`, string(gotParams[0]))
	assert.JSONEq(t, `{"encoding":"base64"}`, string(gotParams[1]))
}

func TestJitoRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad tx"}}`)
	}))
	defer srv.Close()

	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, quietLogger())
	_, err := jc.SendRawTransaction(context.Background(), []byte{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad tx")
}
