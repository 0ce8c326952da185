package settings

import (
	"strings"

	"github.com/brasato/brasato/internal/shared"
)

// Setting keys for payment gateway fee percentages. Values are stored as
// strings in app_settings and parsed on read.
const (
	KeyCreditCardFee = "taxa_cartao_credito"
	KeyDebitCardFee  = "taxa_cartao_debito"
	KeyPixFee        = "taxa_pix"
	KeyIfoodFee      = "taxa_ifood"
	KeyUberEatsFee   = "taxa_uber_eats"
)

// FeeSchedule is an immutable snapshot of fee percentages taken before a
// settlement starts, so one settlement always prices fees consistently.
type FeeSchedule struct {
	CreditCard float64 `json:"credit_card"`
	DebitCard  float64 `json:"debit_card"`
	Pix        float64 `json:"pix"`
	Ifood      float64 `json:"ifood"`
	UberEats   float64 `json:"uber_eats"`
}

// FeeFor returns the fee percentage for a payment method. Cash carries no fee,
// and unknown methods default to zero rather than failing a settlement.
func (f FeeSchedule) FeeFor(method string) float64 {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "credit", "credit_card", "cartao_credito", "cartão de crédito":
		return f.CreditCard
	case "debit", "debit_card", "cartao_debito", "cartão de débito":
		return f.DebitCard
	case "pix":
		return f.Pix
	case "ifood":
		return f.Ifood
	case "uber_eats", "uber eats", "uber":
		return f.UberEats
	default:
		return 0
	}
}

// Setting is one key/value row from app_settings.
type Setting struct {
	Key         string
	Value       string
	Description string
}

var (
	ErrUnknownKey     = shared.NewValidationError("UNKNOWN_SETTING", "settings: unknown setting key")
	ErrInvalidPercent = shared.NewValidationError("INVALID_PERCENT", "settings: fee percentage must be between 0 and 100")
)

func knownFeeKey(key string) bool {
	switch key {
	case KeyCreditCardFee, KeyDebitCardFee, KeyPixFee, KeyIfoodFee, KeyUberEatsFee:
		return true
	}
	return false
}
