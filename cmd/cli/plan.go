package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matmarket/procure-service/internal/catalog"
	"github.com/matmarket/procure-service/internal/engine"
)

var (
	planSheet     string
	planRegion    string
	planReqFile   string
	planRoute     bool
	planStart     string
	planRoundTrip bool
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compare prices and plan a purchase from a local price sheet",
	Long: `Load a supplier price sheet (xlsx), compare prices for the requested
items, compute single-shop and multi-shop purchase plans, and optionally plan
a visiting route across the chosen shops.

The request file is JSON in the same shape as the compare API:

  {
    "items": [
      {"variantId": "tile-600", "quantity": 10, "unit": "m2", "wasteFactorPct": 10}
    ],
    "includeDelivery": false
  }`,
	Example: `  procure-service plan --sheet catalog.xlsx --request order.json
  procure-service plan --sheet catalog.xlsx --request order.json --route --start 45.81,15.98`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planSheet, "sheet", "", "Path to the price sheet (xlsx)")
	planCmd.Flags().StringVar(&planRegion, "region", "local", "Region label for the loaded catalog")
	planCmd.Flags().StringVar(&planReqFile, "request", "", "Path to the request JSON file")
	planCmd.Flags().BoolVar(&planRoute, "route", false, "Also plan a visiting route across the chosen shops")
	planCmd.Flags().StringVar(&planStart, "start", "", "Route start point as lat,lng (required with --route)")
	planCmd.Flags().BoolVar(&planRoundTrip, "return-to-start", false, "Close the route back at the start point")
	planCmd.MarkFlagRequired("sheet")
	planCmd.MarkFlagRequired("request")
}

type planRequest struct {
	Items []struct {
		VariantID      string  `json:"variantId"`
		Quantity       float64 `json:"quantity"`
		Unit           string  `json:"unit"`
		WasteFactorPct float64 `json:"wasteFactorPct"`
	} `json:"items"`
	IncludeDelivery bool `json:"includeDelivery"`
	RequireDelivery bool `json:"requireDelivery"`
	Origin          *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"origin"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	loader := &catalog.SheetLoader{Path: planSheet, Region: planRegion}
	snap, err := loader.LoadSnapshot(ctx, planRegion)
	if err != nil {
		return fmt.Errorf("load price sheet: %w", err)
	}
	logger.Info().
		Int("shops", snap.ShopCount()).
		Int("listings", snap.ListingCount()).
		Msg("Price sheet loaded")

	raw, err := os.ReadFile(planReqFile)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}
	var pr planRequest
	if err := json.Unmarshal(raw, &pr); err != nil {
		return fmt.Errorf("parse request file: %w", err)
	}
	if len(pr.Items) == 0 {
		return fmt.Errorf("request has no items")
	}

	req := &engine.CompareRequest{
		IncludeDelivery: pr.IncludeDelivery,
		RequireDelivery: pr.RequireDelivery,
	}
	for _, it := range pr.Items {
		req.Items = append(req.Items, catalog.RequestedItem{
			VariantID:      it.VariantID,
			Quantity:       it.Quantity,
			Unit:           catalog.NormalizeUnit(it.Unit),
			WasteFactorPct: it.WasteFactorPct,
		})
	}
	if pr.Origin != nil {
		req.Origin = &catalog.Location{Latitude: pr.Origin.Latitude, Longitude: pr.Origin.Longitude}
	}

	engCfg := engine.Defaults()
	if cfg != nil {
		engCfg = &cfg.Engine
	}

	matrix, err := engine.NewMatrixBuilder(engCfg, nil, nil).Build(ctx, snap, req)
	if err != nil {
		return fmt.Errorf("build comparison: %w", err)
	}
	displayMatrix(matrix)

	result, err := engine.NewOptimizer(engCfg, nil).Optimize(ctx, matrix)
	if err != nil {
		return fmt.Errorf("optimize purchase: %w", err)
	}
	displayPlans(result)

	if !planRoute {
		return nil
	}

	start, err := parseLatLng(planStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	var shopIDs []string
	for _, a := range result.MultiShop.Assignments {
		shopIDs = append(shopIDs, a.ShopID)
	}
	if len(shopIDs) == 0 {
		return fmt.Errorf("no shops to route: every requested item is unavailable")
	}

	routeReq := &engine.RouteRequest{
		ShopIDs:       shopIDs,
		Start:         start,
		ReturnToStart: planRoundTrip,
	}
	plan, err := engine.NewRoutePlanner(engCfg, nil, nil).Plan(ctx, snap, routeReq, &result.MultiShop)
	if err != nil {
		return fmt.Errorf("plan route: %w", err)
	}
	displayRoute(plan)
	return nil
}

func parseLatLng(s string) (catalog.Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return catalog.Location{}, fmt.Errorf("expected lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return catalog.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return catalog.Location{}, fmt.Errorf("longitude: %w", err)
	}
	return catalog.Location{Latitude: lat, Longitude: lng}, nil
}

func displayMatrix(m *engine.Matrix) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	header := "ITEM\tQTY"
	for _, shop := range m.Shops {
		header += "\t" + strings.ToUpper(shop.ID)
	}
	fmt.Fprintln(w, header)

	for i, item := range m.Items {
		row := fmt.Sprintf("%s\t%.2f", item.VariantID, item.EffectiveQuantity())
		for s := range m.Shops {
			cell := m.Cell(i, s)
			if !cell.Available() {
				row += "\t" + cell.Availability.String()
				continue
			}
			row += fmt.Sprintf("\t%s (%s)", formatMoney(cell.TotalCost), cell.Tier)
		}
		fmt.Fprintln(w, row)
	}

	w.Flush()
	fmt.Println()
}

func displayPlans(r *engine.OptimizationResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PLAN\tSHOPS\tTOTAL")

	if r.CheapestSingleShop != nil {
		fmt.Fprintf(w, "single\t%s\t%s\n", r.CheapestSingleShop.ShopID, formatMoney(r.CheapestSingleShop.TotalCost))
	} else {
		fmt.Fprintln(w, "single\t-\tno single shop covers every item")
	}

	var shops []string
	for _, a := range r.MultiShop.Assignments {
		shops = append(shops, a.ShopID)
	}
	fmt.Fprintf(w, "multi\t%s\t%s\n", strings.Join(shops, ","), formatMoney(r.MultiShop.TotalCost))
	w.Flush()

	fmt.Printf("\nSavings over single shop: %s\n", formatMoney(r.Savings))
	if len(r.MissingItems) > 0 {
		fmt.Printf("Unavailable items: %s\n", strings.Join(r.MissingItems, ", "))
	}
	fmt.Println()
}

func displayRoute(p *engine.RoutePlan) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STOP\tSHOP\tDIST KM\tTRAVEL MIN\tCASH\tITEMS")

	for _, stop := range p.Stops {
		shop := stop.ShopID
		if shop == "" {
			shop = "(return)"
		}
		fmt.Fprintf(w, "%d\t%s\t%.1f\t%.0f\t%s\t%s\n",
			stop.SequenceIndex, shop, stop.DistanceFromPrevKm, stop.TravelTimeFromPrevMin,
			formatMoney(stop.CashNeeded), strings.Join(stop.Items, ","))
	}
	w.Flush()

	fmt.Printf("\nTotal: %.1f km, %.0f min (%s)\n", p.TotalDistanceKm, p.TotalDurationMinutes, p.AlgorithmUsed)
	if len(p.UnresolvedStops) > 0 {
		fmt.Printf("Unresolved stops: %s\n", strings.Join(p.UnresolvedStops, ", "))
	}
}

func formatMoney(minor int64) string {
	return fmt.Sprintf("%.2f", float64(minor)/100)
}
