package payment

import (
	apppayment "github.com/orris-inc/keygate/internal/application/payment"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// NewRouter wires the rails that have credentials configured.
func NewRouter(cfg config.PaymentConfig, log logger.Interface) apppayment.Router {
	if cfg.Mock {
		log.Warnw("mock payments enabled; every charge is reported as paid")
		return apppayment.Router{
			vo.PaymentMethodCrypto: NewMockVerifier("mock-crypto-"),
			vo.PaymentMethodCard:   NewMockVerifier("mock-card-"),
		}
	}

	router := apppayment.Router{}
	if cfg.CryptoBot.APIToken != "" {
		router[vo.PaymentMethodCrypto] = NewCryptoBotVerifier(cfg.CryptoBot, log)
	}
	if cfg.Stripe.SecretKey != "" {
		router[vo.PaymentMethodCard] = NewStripeCardVerifier(cfg.Stripe, log)
	}
	if len(router) == 0 {
		log.Warnw("no payment rail configured")
	}
	return router
}
