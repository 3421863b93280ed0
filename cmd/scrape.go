package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/scrape"
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run crawl stages from the command line.",
	}
	cmd.AddCommand(
		newScrapeNavigationCmd(),
		newScrapeCategoriesCmd(),
		newScrapeProductsCmd(),
		newScrapeDetailsCmd(),
		newScrapeAllCmd(),
	)
	return cmd
}

func newScrapeNavigationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "navigation",
		Short: "Discover navigation headings from the storefront root.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			result, err := appInstance.Scraper().ScrapeNavigation(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Logger().Info("navigation scrape done", zap.Int("count", result.Count))
			return nil
		},
	}
}

func newScrapeCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [navigationHeadingId]",
		Short: "Discover categories for one heading, or all active headings.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			headingID := ""
			if len(args) > 0 {
				headingID = args[0]
			}
			result, err := appInstance.Scraper().ScrapeCategories(cmd.Context(), headingID)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("categories scrape done", zap.Int("count", result.Count))
			return nil
		},
	}
}

func newScrapeProductsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products [categoryId] [limit]",
		Short: "Discover products for one category, or active categories.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			categoryID := ""
			limit := 0
			if len(args) > 0 {
				categoryID = args[0]
			}
			if len(args) > 1 {
				limit, err = strconv.Atoi(args[1])
				if err != nil || limit < 1 {
					return fmt.Errorf("limit must be a positive integer, got %q", args[1])
				}
			}
			result, err := appInstance.Scraper().ScrapeProducts(cmd.Context(), categoryID, limit)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("products scrape done", zap.Int("count", result.Count))
			return nil
		},
	}
}

func newScrapeDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <productId>",
		Short: "Enrich one product from its detail page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			result, err := appInstance.Scraper().ScrapeProductDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			appInstance.Logger().Info("product details scrape done", zap.Int("reviews", result.ReviewsCount))
			return nil
		},
	}
}

func newScrapeAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run navigation, categories, and products in order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			scraper := appInstance.Scraper()
			nav, err := scraper.ScrapeNavigation(cmd.Context())
			if err != nil {
				return err
			}
			cats, err := scraper.ScrapeCategories(cmd.Context(), "")
			if err != nil {
				return err
			}
			products, err := scraper.ScrapeProducts(cmd.Context(), "", scrape.DefaultProductLimit)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("full scrape done",
				zap.Int("headings", nav.Count),
				zap.Int("categories", cats.Count),
				zap.Int("products", products.Count))
			return nil
		},
	}
}
