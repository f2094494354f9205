package gateways

import (
	"fmt"

	"remnashop/internal/db"
)

// New builds the gateway for a configuration row. The settings variant must
// match the row type.
func New(cfg *db.PaymentGateway, opts Options) (Gateway, error) {
	settings := cfg.Settings.Data()
	switch cfg.Type {
	case db.GatewayTelegramStars:
		if opts.Bot == nil {
			return nil, fmt.Errorf("%s: bot is required", cfg.Type)
		}
		return newTelegramStars(cfg, opts), nil
	case db.GatewayYooKassa:
		if settings.YooKassa == nil {
			return nil, settingsMismatch(cfg.Type)
		}
		return newYooKassa(cfg, *settings.YooKassa, opts), nil
	case db.GatewayYooMoney:
		if settings.YooMoney == nil {
			return nil, settingsMismatch(cfg.Type)
		}
		return newYooMoney(cfg, *settings.YooMoney, opts), nil
	case db.GatewayCryptomus:
		if settings.Cryptomus == nil {
			return nil, settingsMismatch(cfg.Type)
		}
		s := settings.Cryptomus
		return newSigned(cfg, s.MerchantID, s.APIKey, cryptomusAPI, opts), nil
	case db.GatewayHeleket:
		if settings.Heleket == nil {
			return nil, settingsMismatch(cfg.Type)
		}
		s := settings.Heleket
		return newSigned(cfg, s.MerchantID, s.APIKey, heleketAPI, opts), nil
	case db.GatewayPlatega:
		if settings.Platega == nil {
			return nil, settingsMismatch(cfg.Type)
		}
		return newPlatega(cfg, *settings.Platega, opts), nil
	}
	return nil, fmt.Errorf("unknown payment gateway type %q", cfg.Type)
}

func settingsMismatch(t db.PaymentGatewayType) error {
	return fmt.Errorf("%s: settings variant does not match gateway type", t)
}
