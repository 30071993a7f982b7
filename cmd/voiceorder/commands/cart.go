package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/cart"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show the current cart",
	Long: `Show the current cart contents with modifiers and subtotal.

Examples:
  voiceorder cart
  voiceorder cart clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var body struct {
			Items    []cart.Item `json:"items"`
			Subtotal float64     `json:"subtotal"`
		}
		if err := getJSON("/api/cart", &body); err != nil {
			return err
		}

		if len(body.Items) == 0 {
			fmt.Println(dimStyle.Render("cart is empty"))
			return nil
		}

		for _, item := range body.Items {
			name := item.Name
			if item.Size != "" {
				name = item.Size + " " + name
			}
			fmt.Printf("%s %s  %s\n",
				labelStyle.Render(fmt.Sprintf("%dx", item.Quantity)),
				finalStyle.Render(name),
				dimStyle.Render(fmt.Sprintf("$%.2f", item.UnitPrice)),
			)
			for _, child := range item.Children {
				fmt.Println(dimStyle.Render("     + " + child.Name))
			}
		}
		fmt.Println(labelStyle.Render(fmt.Sprintf("subtotal: $%.2f", body.Subtotal)))
		return nil
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		var body struct {
			Status string `json:"status"`
		}
		if err := deleteJSON("/api/cart", &body); err != nil {
			return err
		}
		fmt.Println(labelStyle.Render("cart " + body.Status))
		return nil
	},
}

func init() {
	cartCmd.AddCommand(cartClearCmd)
	rootCmd.AddCommand(cartCmd)
}
