package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dex-sniper-bot-go/pkg/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/sirupsen/logrus"
)

// JitoClient submits transactions through a Jito block engine
type JitoClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// JitoClientConfig contains configuration for JITO client
type JitoClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewJitoClient creates a new JITO RPC client
func NewJitoClient(config JitoClientConfig, logger *logrus.Logger) *JitoClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &JitoClient{
		endpoint: config.Endpoint,
		apiKey:   config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// makeJitoRequest makes a JSON-RPC request to JITO
func (jc *JitoClient) makeJitoRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, jc.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if jc.apiKey != "" {
		req.Header.Set("x-jito-auth", jc.apiKey)
	}

	jc.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": jc.endpoint,
	}).Debug("Making JITO RPC request")

	resp, err := jc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(responseBody))
	}

	var rpcResponse struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      int               `json:"id"`
		Result  json.RawMessage   `json:"result,omitempty"`
		Error   *jsonrpc.RPCError `json:"error,omitempty"`
	}

	if err := json.Unmarshal(responseBody, &rpcResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResponse.Error != nil {
		return nil, rpcResponse.Error
	}

	return rpcResponse.Result, nil
}

// SendRawTransaction forwards a signed transaction to the block engine
func (jc *JitoClient) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	params := []interface{}{
		utils.EncodeBase64(raw),
		map[string]string{"encoding": "base64"},
	}

	result, err := jc.makeJitoRequest(ctx, "sendTransaction", params)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("jito sendTransaction failed: %w", err)
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to unmarshal signature: %w", err)
	}

	sig, err := solana.SignatureFromBase58(encoded)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature from block engine: %w", err)
	}

	jc.logger.WithField("signature", encoded).Info("JITO transaction sent successfully")
	return sig, nil
}
