package common

import (
	"fmt"
	"strings"

	"custody-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a report title framed by '=' rules.
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintUserBox opens a per-user section: name, email and id, then one line
// per detail, closed by a box rule two columns narrower than width.
func PrintUserBox(user models.User, width int, details ...string) {
	fmt.Print(userBox(user, width, details...))
}

func userBox(user models.User, width int, details ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Fprintf(&b, "│  ID: %s\n", user.Id)
	for _, d := range details {
		fmt.Fprintf(&b, "│  %s\n", d)
	}
	b.WriteString("├" + strings.Repeat("─", width-2) + "\n")
	return b.String()
}

// BoxPrefix returns the box-drawing prefix for a list item.
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// DisplayAddress renders a placeholder address as "(pending)".
func DisplayAddress(address string) string {
	if models.IsPlaceholderAddress(address) {
		return "(pending)"
	}
	return address
}

// FormatLocal renders a local-currency amount with two decimals.
func FormatLocal(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}
