package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"contact-automation/internal/crm"
)

// GenericGreeting is played when the caller is not a known customer.
const GenericGreeting = "Здравствуйте! Вы позвонили интернет-провайдеру. Оставьте сообщение после сигнала, и мы вам перезвоним."

type CustomerFinder interface {
	FindCustomerByPhone(ctx context.Context, phone string) (crm.Customer, error)
}

// Speaker plays text into a live call.
type Speaker interface {
	Say(ctx context.Context, callID, text string) error
}

// BillingGreeter greets known customers by name and mentions their balance.
type BillingGreeter struct {
	Customers CustomerFinder
	Speaker   Speaker
	Log       *slog.Logger
}

func (g *BillingGreeter) SendGreeting(ctx context.Context, callID, callerNumber string) error {
	if g.Speaker == nil {
		return errors.New("greeting: speaker not configured")
	}
	text := GenericGreeting
	if g.Customers != nil && callerNumber != "" {
		c, err := g.Customers.FindCustomerByPhone(ctx, callerNumber)
		switch {
		case err == nil:
			text = Personalize(c)
		case !errors.Is(err, crm.ErrNotFound) && g.Log != nil:
			g.Log.Warn("customer lookup for greeting failed", "call_id", callID, "err", err)
		}
	}
	if err := g.Speaker.Say(ctx, callID, text); err != nil {
		return fmt.Errorf("say greeting: %w", err)
	}
	return nil
}

// Personalize renders the greeting for a known customer.
func Personalize(c crm.Customer) string {
	var b strings.Builder
	b.WriteString("Здравствуйте")
	if name := strings.TrimSpace(c.Name); name != "" {
		b.WriteString(", ")
		b.WriteString(name)
	}
	b.WriteString("!")
	if c.Balance < 0 {
		fmt.Fprintf(&b, " Ваш баланс отрицательный: %.2f руб. Пополните счёт, чтобы избежать отключения.", c.Balance)
	} else {
		fmt.Fprintf(&b, " Ваш баланс %.2f руб.", c.Balance)
	}
	b.WriteString(" Оставьте сообщение после сигнала, и мы вам перезвоним.")
	return b.String()
}
