// Package fee вычисляет комиссию платформы и заработок заведения.
package fee

import (
	"errors"
	"math"
)

// ErrInvalidInput возвращается при отрицательной сумме заказа или ставке вне [0, 1].
var ErrInvalidInput = errors.New("invalid fee input")

// Quote делит сумму заказа на комиссию платформы и заработок заведения.
// Комиссия округляется математически; остаток округления всегда остаётся
// в комиссии, заработок считается вычитанием, поэтому
// platformFee + providerEarnings == subtotal при любых входных данных.
func Quote(subtotal int64, commissionRate float64) (platformFee, providerEarnings int64, err error) {
	if subtotal < 0 || math.IsNaN(commissionRate) || commissionRate < 0 || commissionRate > 1 {
		return 0, 0, ErrInvalidInput
	}

	platformFee = int64(math.Round(float64(subtotal) * commissionRate))
	providerEarnings = subtotal - platformFee

	return platformFee, providerEarnings, nil
}
