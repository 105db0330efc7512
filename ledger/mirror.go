package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// MirrorClient reads ledger state from a Hedera mirror node's REST API.
// Mirror data lags consensus slightly; callers treat it as a discovery hint
// and let the transfer itself arbitrate ownership.
type MirrorClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewMirrorClient(baseURL string, log *zap.Logger) *MirrorClient {
	return &MirrorClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type mirrorNft struct {
	SerialNumber int64  `json:"serial_number"`
	Deleted      bool   `json:"deleted"`
	AccountID    string `json:"account_id"`
}

type mirrorNftsResponse struct {
	Nfts []mirrorNft `json:"nfts"`
}

// OwnedUnits lists the non-fungible units of tokenID currently held by
// ownerAccountID, in the requested serial order.
func (m *MirrorClient) OwnedUnits(ctx context.Context, tokenID, ownerAccountID string, limit int, order SortOrder) ([]OwnedUnit, error) {
	q := url.Values{}
	q.Set("account.id", ownerAccountID)
	q.Set("order", string(order))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	nfts, err := m.fetchNfts(ctx, tokenID, q)
	if err != nil {
		return nil, err
	}

	units := make([]OwnedUnit, 0, len(nfts))
	for _, nft := range nfts {
		units = append(units, OwnedUnit{SerialNumber: nft.SerialNumber, Deleted: nft.Deleted})
	}
	return units, nil
}

// TokenHolders groups every live unit of tokenID by its holding account, in
// ascending serial order. Deleted units are skipped.
func (m *MirrorClient) TokenHolders(ctx context.Context, tokenID string) ([]Holder, error) {
	q := url.Values{}
	q.Set("order", string(OrderAsc))
	q.Set("limit", "100")

	nfts, err := m.fetchNfts(ctx, tokenID, q)
	if err != nil {
		return nil, err
	}

	// First-seen order keeps holders stable across passes.
	index := make(map[string]int)
	var holders []Holder
	for _, nft := range nfts {
		if nft.Deleted {
			continue
		}
		i, ok := index[nft.AccountID]
		if !ok {
			i = len(holders)
			index[nft.AccountID] = i
			holders = append(holders, Holder{AccountID: nft.AccountID})
		}
		holders[i].SerialNumbers = append(holders[i].SerialNumbers, nft.SerialNumber)
	}
	return holders, nil
}

func (m *MirrorClient) fetchNfts(ctx context.Context, tokenID string, q url.Values) ([]mirrorNft, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tokens/%s/nfts?%s", m.baseURL, url.PathEscape(tokenID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build mirror node request: %w", err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror node request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("mirror node returned %d: %s", resp.StatusCode, string(body))
	}

	var payload mirrorNftsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode mirror node response: %w", err)
	}
	return payload.Nfts, nil
}
