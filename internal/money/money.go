package money

import "math"

// Round округляет сумму до двух знаков (минорные единицы валюты).
// Половина округляется от нуля, чтобы не накапливать дрейф float64.
func Round(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Split делит сумму на комиссию платформы и заработок продавца по
// фиксированной ставке. Гарантирует fee + earnings == Round(amount).
func Split(amount, feeRate float64) (fee, earnings float64) {
	total := Round(amount)
	fee = Round(total * feeRate)
	earnings = Round(total - fee)
	return fee, earnings
}
