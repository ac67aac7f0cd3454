package validator

import (
	"fmt"
	"strconv"
	"strings"
)

func PositiveAmount[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool {
			return value > 0
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: "amount must be positive",
		},
	}
}

func NonNegativeAmount[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool {
			return value >= 0
		},
		Error: ValidationError{
			Field:   field,
			Value:   value,
			Message: "amount cannot be negative",
		},
	}
}

// SupportedCurrency validates the currency code against the supported set.
func SupportedCurrency(field, code string) Rule {
	return Rule{
		Check: func() bool {
			return IsSupportedCurrency(code)
		},
		Error: ValidationError{
			Field:   field,
			Value:   code,
			Message: fmt.Sprintf("currency %s is not supported", code),
		},
	}
}

// MinTransactableAmount validates an amount against the currency-class
// minimum (e.g. 0.10 USDC fails while 0.10 USD passes). Unknown currencies
// pass here; SupportedCurrency is responsible for rejecting them.
func MinTransactableAmount(field string, amount float64, currency string) Rule {
	code := strings.ToUpper(currency)
	min, known := MinimumTransactable(code)
	return Rule{
		Check: func() bool {
			if !known {
				return true
			}
			return amount >= min
		},
		Error: ValidationError{
			Field:   field,
			Value:   amount,
			Message: fmt.Sprintf("amount %s %s is below the minimum %s %s",
				FormatAmount(amount), code, FormatAmount(min), code),
		},
	}
}

// FormatAmount renders a monetary amount with two decimals for cent-scale
// values and full precision for sub-cent crypto minimums.
func FormatAmount(amount float64) string {
	if amount >= 0.01 || amount == 0 {
		return fmt.Sprintf("%.2f", amount)
	}
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
