package notification

import (
	"fmt"

	"github.com/samueldng/cash-back-phone-link/internal/model"
)

const (
	welcomeText  = "Welcome to our cashback program! Every eligible purchase earns cashback you can redeem in store."
	earnedText   = "Congratulations! You earned R$ %s in cashback! Keep accruing and redeem it at our store."
	redeemedText = "Your cashback of R$ %s was redeemed successfully! Enjoy your purchase!"
)

// Render returns the SMS body for a notification, or "" for an unknown kind.
func Render(n model.Notification) string {
	switch n.Kind {
	case model.NotificationWelcome:
		return welcomeText
	case model.NotificationEarned:
		return fmt.Sprintf(earnedText, n.Amount.StringFixed(2))
	case model.NotificationRedeemed:
		return fmt.Sprintf(redeemedText, n.Amount.StringFixed(2))
	default:
		return ""
	}
}
