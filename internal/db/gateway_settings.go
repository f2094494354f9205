package db

import (
	"fmt"
	"strings"
)

type PaymentGatewayType string

const (
	GatewayTelegramStars PaymentGatewayType = "TELEGRAM_STARS"
	GatewayYooKassa      PaymentGatewayType = "YOOKASSA"
	GatewayYooMoney      PaymentGatewayType = "YOOMONEY"
	GatewayCryptomus     PaymentGatewayType = "CRYPTOMUS"
	GatewayHeleket       PaymentGatewayType = "HELEKET"
	GatewayPlatega       PaymentGatewayType = "PLATEGA"
)

var GatewayTypes = []PaymentGatewayType{
	GatewayTelegramStars,
	GatewayYooKassa,
	GatewayYooMoney,
	GatewayCryptomus,
	GatewayHeleket,
	GatewayPlatega,
}

// ParseGatewayType accepts the enumeration value in any letter case.
func ParseGatewayType(s string) (PaymentGatewayType, error) {
	candidate := PaymentGatewayType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range GatewayTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown payment gateway type %q", s)
}

// DefaultCurrency is the currency a freshly seeded gateway row gets.
func (t PaymentGatewayType) DefaultCurrency() Currency {
	switch t {
	case GatewayTelegramStars:
		return CurrencyXTR
	case GatewayCryptomus, GatewayHeleket:
		return CurrencyUSD
	default:
		return CurrencyRUB
	}
}

// GatewaySettings is a tagged union: exactly the variant matching the owning
// gateway's type is expected to be set.
type GatewaySettings struct {
	TelegramStars *TelegramStarsSettings `json:"telegram_stars,omitempty"`
	YooKassa      *YooKassaSettings      `json:"yookassa,omitempty"`
	YooMoney      *YooMoneySettings      `json:"yoomoney,omitempty"`
	Cryptomus     *CryptomusSettings     `json:"cryptomus,omitempty"`
	Heleket       *HeleketSettings       `json:"heleket,omitempty"`
	Platega       *PlategaSettings       `json:"platega,omitempty"`
}

type TelegramStarsSettings struct{}

type YooKassaSettings struct {
	ShopID string `json:"shop_id"`
	APIKey string `json:"api_key"`
}

type YooMoneySettings struct {
	WalletID           string `json:"wallet_id"`
	NotificationSecret string `json:"notification_secret"`
}

type CryptomusSettings struct {
	MerchantID string `json:"merchant_id"`
	APIKey     string `json:"api_key"`
}

type HeleketSettings struct {
	MerchantID string `json:"merchant_id"`
	APIKey     string `json:"api_key"`
}

type PlategaSettings struct {
	MerchantID    string `json:"merchant_id"`
	APIKey        string `json:"api_key"`
	PaymentMethod int    `json:"payment_method"`
}

// DefaultSettings returns an empty variant for the given gateway type.
func DefaultSettings(t PaymentGatewayType) GatewaySettings {
	switch t {
	case GatewayTelegramStars:
		return GatewaySettings{TelegramStars: &TelegramStarsSettings{}}
	case GatewayYooKassa:
		return GatewaySettings{YooKassa: &YooKassaSettings{}}
	case GatewayYooMoney:
		return GatewaySettings{YooMoney: &YooMoneySettings{}}
	case GatewayCryptomus:
		return GatewaySettings{Cryptomus: &CryptomusSettings{}}
	case GatewayHeleket:
		return GatewaySettings{Heleket: &HeleketSettings{}}
	case GatewayPlatega:
		return GatewaySettings{Platega: &PlategaSettings{PaymentMethod: 2}}
	}
	return GatewaySettings{}
}
