package journal

import "booth-kiosk/internal/payment"

func paymentMethod(s string) payment.Method {
	return payment.Method(s)
}

func paymentStatus(s string) payment.Status {
	if st, ok := payment.ParseStatus(s); ok {
		return st
	}
	return payment.Status(s)
}
