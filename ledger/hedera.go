package ledger

import (
	"context"
	"fmt"

	hedera "github.com/hiero-ledger/hiero-sdk-go/v2/sdk"
	"go.uber.org/zap"
)

// HederaClient implements Client against a Hedera network. Transactions are
// signed with the keys handed in per call; the configured operator only pays
// fees for queries and submissions.
type HederaClient struct {
	client *hedera.Client
	mirror *MirrorClient
	log    *zap.Logger
}

// NewHederaClient builds a network client for the named Hedera network
// (testnet, mainnet, previewnet) and sets the fee-paying operator.
func NewHederaClient(network, operatorID, operatorKey, mirrorBaseURL string, log *zap.Logger) (*HederaClient, error) {
	client, err := hedera.ClientForName(network)
	if err != nil {
		return nil, fmt.Errorf("failed to create Hedera client: %w", err)
	}

	opID, err := hedera.AccountIDFromString(operatorID)
	if err != nil {
		return nil, fmt.Errorf("invalid operator account id: %w", err)
	}
	opKey, err := hedera.PrivateKeyFromStringECDSA(operatorKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	client.SetOperator(opID, opKey)

	return &HederaClient{
		client: client,
		mirror: NewMirrorClient(mirrorBaseURL, log),
		log:    log,
	}, nil
}

func (h *HederaClient) CreateTokenClass(ctx context.Context, params TokenClassParams) (CreateResult, error) {
	treasury, err := hedera.AccountIDFromString(params.TreasuryAccountID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("invalid treasury account id: %w", err)
	}
	treasuryKey, err := hedera.PrivateKeyFromStringECDSA(params.TreasuryKey)
	if err != nil {
		return CreateResult{}, fmt.Errorf("invalid treasury key: %w", err)
	}
	adminKey, err := hedera.PublicKeyFromString(params.AdminPublicKey)
	if err != nil {
		return CreateResult{}, fmt.Errorf("invalid admin public key: %w", err)
	}

	tx := hedera.NewTokenCreateTransaction().
		SetTokenName(params.Name).
		SetTokenSymbol(params.Symbol).
		SetTokenType(hedera.TokenTypeNonFungibleUnique).
		SetSupplyType(hedera.TokenSupplyTypeInfinite).
		SetInitialSupply(0).
		SetDecimals(0).
		SetTreasuryAccountID(treasury).
		SetAdminKey(adminKey).
		SetSupplyKey(adminKey).
		SetFreezeKey(adminKey).
		SetWipeKey(adminKey)

	frozen, err := tx.FreezeWith(h.client)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to freeze token create transaction: %w", err)
	}

	resp, err := frozen.Sign(treasuryKey).Execute(h.client)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to create token: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to get token create receipt: %w", err)
	}
	if receipt.TokenID == nil {
		return CreateResult{}, fmt.Errorf("token creation failed - no token ID returned")
	}

	return CreateResult{
		TokenID:       receipt.TokenID.String(),
		TransactionID: resp.TransactionID.String(),
		Status:        receipt.Status.String(),
	}, nil
}

func (h *HederaClient) Mint(ctx context.Context, tokenID string, amount int, supplyKey string, metadata []byte) (MintResult, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return MintResult{}, fmt.Errorf("invalid token id: %w", err)
	}
	key, err := hedera.PrivateKeyFromStringECDSA(supplyKey)
	if err != nil {
		return MintResult{}, fmt.Errorf("invalid supply key: %w", err)
	}

	// One metadata entry per minted unit.
	metadatas := make([][]byte, 0, amount)
	for i := 0; i < amount; i++ {
		metadatas = append(metadatas, metadata)
	}

	tx := hedera.NewTokenMintTransaction().
		SetTokenID(tid).
		SetMetadatas(metadatas).
		SetMaxTransactionFee(hedera.NewHbar(30))

	frozen, err := tx.FreezeWith(h.client)
	if err != nil {
		return MintResult{}, fmt.Errorf("failed to freeze mint transaction: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return MintResult{}, fmt.Errorf("failed to mint: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return MintResult{}, fmt.Errorf("failed to get mint receipt: %w", err)
	}
	if len(receipt.SerialNumbers) == 0 {
		return MintResult{}, fmt.Errorf("minting failed - no serial numbers returned")
	}

	return MintResult{
		SerialNumbers: receipt.SerialNumbers,
		TransactionID: resp.TransactionID.String(),
		Status:        receipt.Status.String(),
	}, nil
}

func (h *HederaClient) TransferFungible(ctx context.Context, tokenID, from, fromKey, to string, rawAmount int64) (TxResult, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid token id: %w", err)
	}
	sender, err := hedera.AccountIDFromString(from)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid sender account id: %w", err)
	}
	recipient, err := hedera.AccountIDFromString(to)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid recipient account id: %w", err)
	}
	key, err := hedera.PrivateKeyFromStringECDSA(fromKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid sender key: %w", err)
	}

	tx := hedera.NewTransferTransaction().
		AddTokenTransfer(tid, sender, -rawAmount).
		AddTokenTransfer(tid, recipient, rawAmount)

	frozen, err := tx.FreezeWith(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze fungible transfer: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to transfer fungible token: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get transfer receipt: %w", err)
	}

	return TxResult{TransactionID: resp.TransactionID.String(), Status: receipt.Status.String()}, nil
}

func (h *HederaClient) TransferUnits(ctx context.Context, tokenID string, serials []int64, from, fromKey, to string) (TxResult, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid token id: %w", err)
	}
	sender, err := hedera.AccountIDFromString(from)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid sender account id: %w", err)
	}
	recipient, err := hedera.AccountIDFromString(to)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid recipient account id: %w", err)
	}
	key, err := hedera.PrivateKeyFromStringECDSA(fromKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid sender key: %w", err)
	}

	// All serials ride in one transaction to avoid repeated-account errors.
	tx := hedera.NewTransferTransaction()
	for _, serial := range serials {
		tx.AddNftTransfer(hedera.NftID{TokenID: tid, SerialNumber: serial}, sender, recipient)
	}

	frozen, err := tx.FreezeWith(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze unit transfer: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to transfer units: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get unit transfer receipt: %w", err)
	}

	return TxResult{TransactionID: resp.TransactionID.String(), Status: receipt.Status.String()}, nil
}

func (h *HederaClient) Freeze(ctx context.Context, tokenID, accountID, freezeKey string) (TxResult, error) {
	tid, acc, key, err := h.parseFreezeParams(tokenID, accountID, freezeKey)
	if err != nil {
		return TxResult{}, err
	}

	frozen, err := hedera.NewTokenFreezeTransaction().
		SetTokenID(tid).
		SetAccountID(acc).
		FreezeWith(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze freeze transaction: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze account: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get freeze receipt: %w", err)
	}

	return TxResult{TransactionID: resp.TransactionID.String(), Status: receipt.Status.String()}, nil
}

func (h *HederaClient) Unfreeze(ctx context.Context, tokenID, accountID, freezeKey string) (TxResult, error) {
	tid, acc, key, err := h.parseFreezeParams(tokenID, accountID, freezeKey)
	if err != nil {
		return TxResult{}, err
	}

	frozen, err := hedera.NewTokenUnfreezeTransaction().
		SetTokenID(tid).
		SetAccountID(acc).
		FreezeWith(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze unfreeze transaction: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to unfreeze account: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get unfreeze receipt: %w", err)
	}

	return TxResult{TransactionID: resp.TransactionID.String(), Status: receipt.Status.String()}, nil
}

func (h *HederaClient) Associate(ctx context.Context, tokenID, accountID, accountKey string) (TxResult, error) {
	tid, acc, key, err := h.parseFreezeParams(tokenID, accountID, accountKey)
	if err != nil {
		return TxResult{}, err
	}

	frozen, err := hedera.NewTokenAssociateTransaction().
		SetAccountID(acc).
		SetTokenIDs(tid).
		FreezeWith(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze associate transaction: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to associate token: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get associate receipt: %w", err)
	}

	return TxResult{TransactionID: resp.TransactionID.String(), Status: receipt.Status.String()}, nil
}

func (h *HederaClient) Balance(ctx context.Context, accountID, tokenID string) (int64, error) {
	acc, err := hedera.AccountIDFromString(accountID)
	if err != nil {
		return 0, fmt.Errorf("invalid account id: %w", err)
	}
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return 0, fmt.Errorf("invalid token id: %w", err)
	}

	balance, err := hedera.NewAccountBalanceQuery().
		SetAccountID(acc).
		Execute(h.client)
	if err != nil {
		return 0, fmt.Errorf("failed to query account balance: %w", err)
	}

	return int64(balance.Tokens.Get(tid)), nil
}

func (h *HederaClient) TotalSupply(ctx context.Context, tokenID string) (int64, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return 0, fmt.Errorf("invalid token id: %w", err)
	}

	info, err := hedera.NewTokenInfoQuery().
		SetTokenID(tid).
		Execute(h.client)
	if err != nil {
		return 0, fmt.Errorf("failed to query token info for %s: %w", tokenID, err)
	}

	return int64(info.TotalSupply), nil
}

func (h *HederaClient) OwnedUnits(ctx context.Context, tokenID, ownerAccountID string, limit int, order SortOrder) ([]OwnedUnit, error) {
	return h.mirror.OwnedUnits(ctx, tokenID, ownerAccountID, limit, order)
}

func (h *HederaClient) TokenHolders(ctx context.Context, tokenID string) ([]Holder, error) {
	return h.mirror.TokenHolders(ctx, tokenID)
}

func (h *HederaClient) Burn(ctx context.Context, tokenID string, serials []int64, supplyKey string) (TxResult, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid token id: %w", err)
	}
	key, err := hedera.PrivateKeyFromStringECDSA(supplyKey)
	if err != nil {
		return TxResult{}, fmt.Errorf("invalid supply key: %w", err)
	}

	frozen, err := hedera.NewTokenBurnTransaction().
		SetTokenID(tid).
		SetSerialNumbers(serials).
		FreezeWith(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to freeze burn transaction: %w", err)
	}
	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to burn units: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get burn receipt: %w", err)
	}

	return TxResult{TransactionID: resp.TransactionID.String(), Status: receipt.Status.String()}, nil
}

func (h *HederaClient) parseFreezeParams(tokenID, accountID, keyStr string) (hedera.TokenID, hedera.AccountID, hedera.PrivateKey, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return hedera.TokenID{}, hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("invalid token id: %w", err)
	}
	acc, err := hedera.AccountIDFromString(accountID)
	if err != nil {
		return hedera.TokenID{}, hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("invalid account id: %w", err)
	}
	key, err := hedera.PrivateKeyFromStringECDSA(keyStr)
	if err != nil {
		return hedera.TokenID{}, hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("invalid private key: %w", err)
	}
	return tid, acc, key, nil
}

// Close releases the underlying network client.
func (h *HederaClient) Close() error {
	return h.client.Close()
}
