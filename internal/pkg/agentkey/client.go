// Package agentkey is the HTTP client for the external key-custody service.
// The service holds the primary agent's key material; this process only ever
// asks it to sign typed-data digests.
package agentkey

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type signDigestRequest struct {
	Address string `json:"address"`
	Digest  string `json:"digest"`
}

type signDigestResponse struct {
	Signature string `json:"signature"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SignDigest asks the custody service to sign a 32-byte typed-data digest
// with the key behind the given address.
func (c *Client) SignDigest(ctx context.Context, address common.Address, digest common.Hash) (hexutil.Bytes, error) {
	body, err := json.Marshal(signDigestRequest{
		Address: address.Hex(),
		Digest:  digest.Hex(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal sign request")
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/sign-digest", body)
	if err != nil {
		return nil, err
	}

	var resp signDigestResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal sign response")
	}

	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "custody service returned invalid signature hex")
	}
	if len(sig) != 65 {
		return nil, errors.Errorf("custody service returned signature of length %d, want 65", len(sig))
	}
	return sig, nil
}

// doRequest handles the common HTTP request/response logic for custody API
// calls.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build custody request")
	}

	req.Header.Set("x-api-key", c.apiKey)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "custody request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody response")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return nil, errors.Errorf("custody service returned status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(errors.New(errResp.Error), "custody api error")
	}

	return respBody, nil
}
