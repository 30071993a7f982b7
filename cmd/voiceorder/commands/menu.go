package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Show the menu catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		var body struct {
			Categories []catalog.Category `json:"categories"`
		}
		if err := getJSON("/api/menu", &body); err != nil {
			return err
		}

		for _, category := range body.Categories {
			fmt.Println(labelStyle.Render(category.Name))
			for _, product := range category.Products {
				fmt.Printf("  %-32s %s\n",
					product.Name,
					dimStyle.Render(fmt.Sprintf("$%.2f", product.Cost)),
				)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}
