package mailer

import "embed"

const (
	FromName                = "Arabesque Dance Company"
	PaymentReceiptTemplate  = "payment_receipt.tmpl"
	RefundRequestedTemplate = "refund_requested.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
