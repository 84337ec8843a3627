// internal/blockchain/solbc/token_metadata.go
package solbc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// MetaplexProgramID – программа Token Metadata
var MetaplexProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

const offchainTimeout = 5 * time.Second

// TokenMetadata хранит информацию о токене
type TokenMetadata struct {
	Name        string
	Symbol      string
	URI         string
	Image       string
	Description string
}

// metadataHeader – начало аккаунта Metaplex Metadata в borsh-кодировке.
type metadataHeader struct {
	Key             uint8
	UpdateAuthority solana.PublicKey
	Mint            solana.PublicKey
	Name            string
	Symbol          string
	URI             string
}

// offchainMetadata – JSON, на который указывает URI.
type offchainMetadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// AccountReader – часть клиента, нужная для чтения метаданных.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// MetadataFetcher читает метаданные Metaplex и обогащает их off-chain JSON.
type MetadataFetcher struct {
	client     AccountReader
	httpClient *http.Client
	logger     *zap.Logger
}

func NewMetadataFetcher(client AccountReader, logger *zap.Logger) *MetadataFetcher {
	return &MetadataFetcher{
		client: client,
		httpClient: &http.Client{
			Timeout: offchainTimeout,
		},
		logger: logger.Named("metadata"),
	}
}

// FindMetadataAddress вычисляет PDA ["metadata", program, mint].
func FindMetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			MetaplexProgramID.Bytes(),
			mint.Bytes(),
		},
		MetaplexProgramID,
	)
	return addr, err
}

// DecodeMetadata разбирает on-chain аккаунт метаданных.
func DecodeMetadata(data []byte) (*TokenMetadata, error) {
	var header metadataHeader
	if err := bin.NewBorshDecoder(data).Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode metadata account: %w", err)
	}
	return &TokenMetadata{
		Name:   trimPadding(header.Name),
		Symbol: trimPadding(header.Symbol),
		URI:    trimPadding(header.URI),
	}, nil
}

// Fetch получает метаданные токена. Ошибка off-chain запроса не считается фатальной.
func (f *MetadataFetcher) Fetch(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	addr, err := FindMetadataAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive metadata address: %w", err)
	}

	acc, err := f.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata account: %w", err)
	}

	metadata, err := DecodeMetadata(acc.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}

	if metadata.URI != "" {
		if err := f.enrichFromURI(ctx, metadata); err != nil {
			f.logger.Debug("failed to enrich metadata from uri",
				zap.String("mint", mint.String()),
				zap.String("uri", metadata.URI),
				zap.Error(err))
		}
	}

	f.logger.Debug("token metadata retrieved",
		zap.String("mint", mint.String()),
		zap.String("symbol", metadata.Symbol),
		zap.String("name", metadata.Name))

	return metadata, nil
}

// enrichFromURI дополняет метаданные описанием и изображением из off-chain JSON
func (f *MetadataFetcher) enrichFromURI(ctx context.Context, metadata *TokenMetadata) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadata.URI, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata uri returned status code: %d", resp.StatusCode)
	}

	var offchain offchainMetadata
	if err := json.NewDecoder(resp.Body).Decode(&offchain); err != nil {
		return fmt.Errorf("failed to decode metadata json: %w", err)
	}

	// Обновляем только если получили новые данные
	if metadata.Name == "" {
		metadata.Name = offchain.Name
	}
	if metadata.Symbol == "" {
		metadata.Symbol = offchain.Symbol
	}
	metadata.Description = offchain.Description
	metadata.Image = offchain.Image
	return nil
}

func trimPadding(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
