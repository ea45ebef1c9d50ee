package valueobjects

// PaymentMethod identifies a payment rail. Each rail has its own verifier and currency.
type PaymentMethod string

const (
	PaymentMethodCrypto PaymentMethod = "crypto"
	PaymentMethodCard   PaymentMethod = "card"
)

func (m PaymentMethod) String() string {
	return string(m)
}

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCrypto || m == PaymentMethodCard
}

// PaymentMethods returns the supported rails in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentMethodCrypto, PaymentMethodCard}
}
