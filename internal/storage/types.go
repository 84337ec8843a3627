// internal/storage/types.go
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/walletwatch/internal/dex"
)

// Metadata – описание токена (Metaplex + off-chain JSON).
type Metadata struct {
	Symbol      string
	Name        string
	Image       string
	URI         string
	Description string
}

// Token – состояние отслеживаемого токена. Токены не удаляются, только помечаются мёртвыми.
type Token struct {
	Mint         solana.PublicKey
	Pool         dex.Variant
	PoolAddress  solana.PublicKey
	BaseVault    solana.PublicKey
	QuoteVault   solana.PublicKey
	BaseMint     solana.PublicKey
	QuoteMint    solana.PublicKey
	BaseLPVault  solana.PublicKey
	QuoteLPVault solana.PublicKey

	Metadata Metadata

	IsDead                bool
	PriceFetchFailures    int
	MetadataFetchFailures int
	// LastTradeAt – время последней известной транзакции по mint (zero = неизвестно)
	LastTradeAt time.Time
}

// HasPool сообщает, известен ли пул токена.
func (t *Token) HasPool() bool {
	return t.Pool != "" && t.Pool != dex.VariantNone
}

// HasMetadata сообщает, загружены ли метаданные.
func (t *Token) HasMetadata() bool {
	return t.Metadata.Symbol != "" || t.Metadata.Name != ""
}

// Failures возвращает значение счётчика ошибок указанного вида.
func (t *Token) Failures(kind FailureKind) int {
	if kind == FailureMetadata {
		return t.MetadataFetchFailures
	}
	return t.PriceFetchFailures
}

// ApplyPool переносит найденный пул в запись токена.
func (t *Token) ApplyPool(desc *dex.PoolDescriptor) {
	if desc == nil {
		t.Pool = dex.VariantNone
		return
	}
	t.Pool = desc.Variant
	t.PoolAddress = desc.PoolAddress
	t.BaseVault = desc.BaseVault
	t.QuoteVault = desc.QuoteVault
	t.BaseMint = desc.BaseMint
	t.QuoteMint = desc.QuoteMint
	t.BaseLPVault = solana.PublicKey{}
	t.QuoteLPVault = solana.PublicKey{}
	if desc.LPVaults != nil {
		t.BaseLPVault = desc.LPVaults.Base
		t.QuoteLPVault = desc.LPVaults.Quote
	}
}

// PoolDescriptor восстанавливает дескриптор пула из записи токена.
func (t *Token) PoolDescriptor() *dex.PoolDescriptor {
	if !t.HasPool() {
		return nil
	}
	desc := &dex.PoolDescriptor{
		Variant:     t.Pool,
		PoolAddress: t.PoolAddress,
		BaseVault:   t.BaseVault,
		QuoteVault:  t.QuoteVault,
		BaseMint:    t.BaseMint,
		QuoteMint:   t.QuoteMint,
	}
	if !t.BaseLPVault.IsZero() && !t.QuoteLPVault.IsZero() {
		desc.LPVaults = &dex.LPVaults{Base: t.BaseLPVault, Quote: t.QuoteLPVault}
	}
	return desc
}

// PriceSample – одна точка истории цены токена.
type PriceSample struct {
	Price        float64     `json:"price"`
	MarketCapSol *float64    `json:"marketCapSol,omitempty"`
	Pool         dex.Variant `json:"pool,omitempty"`
	// Signatures – транзакции, по которым получена цена (ключ дедупликации)
	Signatures []string `json:"signatures,omitempty"`
	// Timestamp в миллисекундах
	Timestamp int64 `json:"ts"`
}

// Time возвращает время выборки.
func (s PriceSample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// EncodeSample сериализует выборку в JSON-член временного ряда.
func EncodeSample(s PriceSample) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode price sample: %w", err)
	}
	return string(data), nil
}

// DecodeSample разбирает JSON-член временного ряда. score используется,
// если в старых записях нет поля ts.
func DecodeSample(member string, score float64) (PriceSample, error) {
	var s PriceSample
	if err := json.Unmarshal([]byte(member), &s); err != nil {
		return PriceSample{}, fmt.Errorf("failed to decode price sample: %w", err)
	}
	if s.Timestamp == 0 {
		s.Timestamp = int64(score)
	}
	return s, nil
}

// TrendingEntry – изменение цены токена за окно в процентах.
type TrendingEntry struct {
	Mint          solana.PublicKey
	PercentChange float64
}

// Holding – токены пользователя и выбранный пресет уведомлений.
type Holding struct {
	UserID      string
	Wallet      solana.PublicKey
	Mints       []solana.PublicKey
	AlarmPreset string
}

// Payment – оплата подписки, найденная в блокчейне.
type Payment struct {
	Signature   string           `json:"signature"`
	AmountSol   decimal.Decimal  `json:"amountPayedSol"`
	Source      solana.PublicKey `json:"sourceWallet"`
	Destination solana.PublicKey `json:"destinationWallet"`
	Timestamp   time.Time        `json:"timestamp"`
}
