// internal/storage/codec.go
package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/walletwatch/internal/dex"
)

// Поля плоского представления токена
const (
	FieldPool                  = "pool"
	FieldPoolAddress           = "poolAddress"
	FieldBaseVault             = "baseVault"
	FieldQuoteVault            = "quoteVault"
	FieldBaseMint              = "baseMint"
	FieldQuoteMint             = "quoteMint"
	FieldBaseLPVault           = "baseLpVault"
	FieldQuoteLPVault          = "quoteLpVault"
	FieldIsDead                = "isDead"
	FieldPriceFetchFailures    = "priceFetchFailures"
	FieldMetadataFetchFailures = "metadataFetchFailures"
	FieldLastTradeAt           = "lastTradeAt"

	// MetadataPrefix – префикс вложенной карты метаданных
	MetadataPrefix = "tokenMetadata:"
)

// FailureField возвращает имя поля счётчика ошибок.
func FailureField(kind FailureKind) string {
	if kind == FailureMetadata {
		return FieldMetadataFetchFailures
	}
	return FieldPriceFetchFailures
}

// EncodeToken превращает запись токена в плоскую карту полей хранилища.
// Пустые адреса и метаданные не записываются.
func EncodeToken(t *Token) map[string]string {
	fields := map[string]string{
		FieldIsDead:                strconv.FormatBool(t.IsDead),
		FieldPriceFetchFailures:    strconv.Itoa(t.PriceFetchFailures),
		FieldMetadataFetchFailures: strconv.Itoa(t.MetadataFetchFailures),
	}
	if t.Pool != "" {
		fields[FieldPool] = string(t.Pool)
	}

	putKey := func(field string, key solana.PublicKey) {
		if !key.IsZero() {
			fields[field] = key.String()
		}
	}
	putKey(FieldPoolAddress, t.PoolAddress)
	putKey(FieldBaseVault, t.BaseVault)
	putKey(FieldQuoteVault, t.QuoteVault)
	putKey(FieldBaseMint, t.BaseMint)
	putKey(FieldQuoteMint, t.QuoteMint)
	putKey(FieldBaseLPVault, t.BaseLPVault)
	putKey(FieldQuoteLPVault, t.QuoteLPVault)

	if !t.LastTradeAt.IsZero() {
		fields[FieldLastTradeAt] = strconv.FormatInt(t.LastTradeAt.UnixMilli(), 10)
	}

	for name, value := range metadataFields(&t.Metadata) {
		if *value != "" {
			fields[MetadataPrefix+name] = *value
		}
	}
	return fields
}

// DecodeToken восстанавливает запись токена из плоской карты полей.
func DecodeToken(mint solana.PublicKey, fields map[string]string) (*Token, error) {
	t := &Token{Mint: mint}

	for field, value := range fields {
		var err error
		switch field {
		case FieldPool:
			t.Pool, err = dex.ParseVariant(value)
		case FieldPoolAddress:
			t.PoolAddress, err = solana.PublicKeyFromBase58(value)
		case FieldBaseVault:
			t.BaseVault, err = solana.PublicKeyFromBase58(value)
		case FieldQuoteVault:
			t.QuoteVault, err = solana.PublicKeyFromBase58(value)
		case FieldBaseMint:
			t.BaseMint, err = solana.PublicKeyFromBase58(value)
		case FieldQuoteMint:
			t.QuoteMint, err = solana.PublicKeyFromBase58(value)
		case FieldBaseLPVault:
			t.BaseLPVault, err = solana.PublicKeyFromBase58(value)
		case FieldQuoteLPVault:
			t.QuoteLPVault, err = solana.PublicKeyFromBase58(value)
		case FieldIsDead:
			t.IsDead, err = strconv.ParseBool(value)
		case FieldPriceFetchFailures:
			t.PriceFetchFailures, err = strconv.Atoi(value)
		case FieldMetadataFetchFailures:
			t.MetadataFetchFailures, err = strconv.Atoi(value)
		case FieldLastTradeAt:
			var ms int64
			ms, err = strconv.ParseInt(value, 10, 64)
			t.LastTradeAt = time.UnixMilli(ms)
		default:
			if name, ok := strings.CutPrefix(field, MetadataPrefix); ok {
				if target, known := metadataFields(&t.Metadata)[name]; known {
					*target = value
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("field %s of token %s: %w", field, mint, err)
		}
	}
	return t, nil
}

func metadataFields(m *Metadata) map[string]*string {
	return map[string]*string{
		"symbol":      &m.Symbol,
		"name":        &m.Name,
		"image":       &m.Image,
		"uri":         &m.URI,
		"description": &m.Description,
	}
}

// EncodeMints хранит список mint'ов в виде строки через запятую.
func EncodeMints(mints []solana.PublicKey) string {
	parts := make([]string, len(mints))
	for i, m := range mints {
		parts[i] = m.String()
	}
	return strings.Join(parts, ",")
}

// DecodeMints разбирает список mint'ов; пустые элементы пропускаются.
func DecodeMints(value string) ([]solana.PublicKey, error) {
	var mints []solana.PublicKey
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mint, err := solana.PublicKeyFromBase58(part)
		if err != nil {
			return nil, fmt.Errorf("invalid mint %q: %w", part, err)
		}
		mints = append(mints, mint)
	}
	return mints, nil
}
