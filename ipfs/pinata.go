// Package ipfs publishes SAG metadata to IPFS through a pinning service.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Publisher pins a JSON document and returns its content URI.
type Publisher interface {
	PublishJSON(ctx context.Context, name string, payload interface{}) (string, error)
}

// PinataClient publishes through the Pinata pinning API.
type PinataClient struct {
	baseURL string
	jwt     string
	http    *http.Client
	log     *zap.Logger
}

func NewPinataClient(baseURL, jwt string, log *zap.Logger) *PinataClient {
	return &PinataClient{
		baseURL: baseURL,
		jwt:     jwt,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

type pinRequest struct {
	PinataContent  interface{} `json:"pinataContent"`
	PinataMetadata struct {
		Name string `json:"name"`
	} `json:"pinataMetadata"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PublishJSON pins payload and returns an ipfs:// URI for the resulting CID.
func (p *PinataClient) PublishJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	reqBody := pinRequest{PinataContent: payload}
	reqBody.PinataMetadata.Name = name

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.jwt)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("pinning service returned %d: %s", resp.StatusCode, string(msg))
	}

	var result pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}
	if result.IpfsHash == "" {
		return "", fmt.Errorf("pinning service returned no hash")
	}

	p.log.Info("metadata pinned", zap.String("name", name), zap.String("cid", result.IpfsHash))
	return "ipfs://" + result.IpfsHash, nil
}
