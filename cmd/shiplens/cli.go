package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/observer"
	"github.com/hpungsan/shiplens/internal/ops"
	"github.com/hpungsan/shiplens/internal/summary"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, baseDir string) *cli.App {
	remote := background.NewRemote(cfg.BaseURL(), 0)

	app := &cli.App{
		Name:    "shiplens",
		Usage:   "Shipment token observer and summarizer",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(cfg, baseDir),
			tokenCmd(remote),
			cachedCmd(remote),
			fetchCmd(remote),
			listCmd(remote),
			summaryCmd(remote, cfg, baseDir),
			emailCmd(remote, cfg, baseDir),
			exportCmd(remote, cfg, baseDir),
			forgetCmd(remote),
			resetCmd(remote),
			validateURLCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func tabFlag() cli.Flag {
	return &cli.Int64Flag{Name: "tab", Aliases: []string{"t"}, Usage: "Browser tab id"}
}

func fileFlag() cli.Flag {
	return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Saved shipment JSON instead of a cached tab"}
}

// tokenCmd creates the token command.
func tokenCmd(remote *background.Remote) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Show the captured bearer token",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "reveal", Usage: "Print the full token"},
			&cli.BoolFlag{Name: "copy", Aliases: []string{"c"}, Usage: "Copy the token to the clipboard"},
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
		},
		Action: func(c *cli.Context) error {
			var info background.TokenInfoReply
			if err := remote.Call(c.Context, background.KindGetTokenInfo, nil, &info); err != nil {
				return outputError(err)
			}

			var token string
			if c.Bool("reveal") || c.Bool("copy") {
				var bearer background.BearerReply
				if err := remote.Call(c.Context, background.KindGetLastBearer, nil, &bearer); err != nil {
					return outputError(err)
				}
				if bearer.Token != nil {
					token = *bearer.Token
				}
			}

			if c.Bool("copy") {
				if token == "" {
					return outputError(errors.NewPrecondition("Missing bearer token", "token"))
				}
				if err := copyToClipboard(token); err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("copy to clipboard: %w", err)))
				}
			}

			w := c.App.Writer
			if c.Bool("json") {
				out := map[string]any{"info": info.Info}
				if c.Bool("reveal") && token != "" {
					out["token"] = token
				}
				return outputJSON(w, out)
			}

			printTokenInfo(w, info.Info, lo.Ternary(c.Bool("reveal"), token, ""))
			if c.Bool("copy") {
				pterm.Success.WithWriter(w).Println("Token copied to clipboard")
			}
			return nil
		},
	}
}

// cachedCmd creates the cached command.
func cachedCmd(remote *background.Remote) *cli.Command {
	return &cli.Command{
		Name:  "cached",
		Usage: "Print the shipment cached for a tab",
		Flags: []cli.Flag{tabFlag()},
		Action: func(c *cli.Context) error {
			tabID, err := requireTab(c)
			if err != nil {
				return outputError(err)
			}
			rec, err := cachedRecord(c.Context, remote, tabID)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, rec)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(remote *background.Remote) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a shipment with the captured token",
		ArgsUsage: "<shipment-id>",
		Flags: []cli.Flag{
			tabFlag(),
			&cli.BoolFlag{Name: "bust", Usage: "Add a cache-busting timestamp"},
			&cli.StringSliceFlag{Name: "type", Usage: "Detail section to request (repeatable)"},
			&cli.StringFlag{Name: "event", Usage: "Event tag sent with the request"},
		},
		Action: func(c *cli.Context) error {
			m := background.FetchShipmentRequest{
				ShipmentID: background.FlexString(c.Args().First()),
				QueryTypes: c.StringSlice("type"),
				Event:      c.String("event"),
			}
			if c.IsSet("tab") {
				tabID := c.Int64("tab")
				m.TabID = &tabID
			}
			if c.Bool("bust") {
				m.BustTS = background.FlexString(fmt.Sprint(time.Now().UnixMilli()))
			}

			var reply background.FetchReply
			if err := remote.Call(c.Context, background.KindFetchShipment, m, &reply); err != nil {
				return outputError(err)
			}
			if reply.Error != "" {
				return outputError(replyError(reply.Error, reply.Code))
			}
			return outputJSON(c.App.Writer, reply)
		},
	}
}

// listCmd creates the list command.
func listCmd(remote *background.Remote) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Fetch the open shipments sharing a custom id",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "custom-id", Usage: "Custom id to look up"},
			tabFlag(),
		},
		Action: func(c *cli.Context) error {
			customID, reply, err := fetchList(c, remote)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{
				"customId": customID,
				"ok":       reply.OK,
				"status":   reply.Status,
				"data":     reply.Data,
			})
		},
	}
}

// summaryCmd creates the summary command.
func summaryCmd(remote *background.Remote, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Summarize a cached or saved shipment",
		Flags: []cli.Flag{
			tabFlag(),
			fileFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
			&cli.BoolFlag{Name: "markdown", Usage: "Output markdown"},
		},
		Action: func(c *cli.Context) error {
			shipmentID, body, err := loadShipment(c, remote, cfg, baseDir)
			if err != nil {
				return outputError(err)
			}
			out := ops.Summarize(shipmentID, body)

			w := c.App.Writer
			switch {
			case c.Bool("json"):
				return outputJSON(w, out)
			case c.Bool("markdown"):
				_, err := fmt.Fprint(w, out.Markdown)
				return err
			}
			return printSummary(w, out)
		},
	}
}

// emailCmd creates the email command.
func emailCmd(remote *background.Remote, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "email",
		Usage: "Compose the email draft for a cached or saved shipment",
		Flags: []cli.Flag{
			tabFlag(),
			fileFlag(),
			&cli.StringFlag{Name: "only", Usage: "Comma-separated fields to include (replaces the defaults)"},
			&cli.StringFlag{Name: "exclude", Usage: "Comma-separated fields to leave out"},
			&cli.BoolFlag{Name: "copy", Aliases: []string{"c"}, Usage: "Copy the draft to the clipboard"},
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
		},
		Action: func(c *cli.Context) error {
			shipmentID, body, err := loadShipment(c, remote, cfg, baseDir)
			if err != nil {
				return outputError(err)
			}
			out, err := ops.ComposeEmail(ops.Summarize(shipmentID, body).Fields, ops.EmailInput{
				Only:    splitList(c.String("only")),
				Exclude: splitList(c.String("exclude")),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("copy") {
				if err := copyToClipboard(out.Text); err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("copy to clipboard: %w", err)))
				}
			}

			w := c.App.Writer
			if c.Bool("json") {
				return outputJSON(w, out)
			}
			fmt.Fprintln(w, out.Text)
			if c.Bool("copy") {
				pterm.Success.WithWriter(w).Println("Email copied to clipboard")
			}
			return nil
		},
	}
}

// exportCmd creates the export command.
func exportCmd(remote *background.Remote, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a tab's cached shipment (or its shipment list) to a JSON file",
		Flags: []cli.Flag{
			tabFlag(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path named <id>.json or shipment-list-<name>.json (default: ~/.shiplens/exports/<name>.json)"},
			&cli.BoolFlag{Name: "list", Usage: "Export the related shipment list instead"},
		},
		Action: func(c *cli.Context) error {
			tabID, err := requireTab(c)
			if err != nil {
				return outputError(err)
			}
			exportsDir, err := ops.DefaultExportsDir(baseDir)
			if err != nil {
				return outputError(err)
			}

			var out *ops.ExportOutput
			if c.Bool("list") {
				customID, reply, err := listForTab(c.Context, remote, tabID)
				if err != nil {
					return outputError(err)
				}
				if !reply.OK {
					return outputError(errors.NewUpstream(fmt.Errorf("shipment list request returned status %d", reply.Status)))
				}
				out, err = ops.ExportShipmentList(cfg, exportsDir, customID, bodyOf(reply), c.String("path"), time.Now())
				if err != nil {
					return outputError(err)
				}
			} else {
				rec, err := cachedRecord(c.Context, remote, tabID)
				if err != nil {
					return outputError(err)
				}
				out, err = ops.ExportShipment(cfg, exportsDir, rec, c.String("path"))
				if err != nil {
					return outputError(err)
				}
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// forgetCmd creates the forget command.
func forgetCmd(remote *background.Remote) *cli.Command {
	return &cli.Command{
		Name:  "forget",
		Usage: "Evict a tab's cached shipment",
		Flags: []cli.Flag{tabFlag()},
		Action: func(c *cli.Context) error {
			tabID, err := requireTab(c)
			if err != nil {
				return outputError(err)
			}
			var ack background.AckReply
			if err := remote.Call(c.Context, background.KindTabLoading, background.TabLoadingRequest{TabID: &tabID}, &ack); err != nil {
				return outputError(err)
			}
			if !ack.OK {
				return outputError(replyError(ack.Error, ack.Code))
			}
			pterm.Success.WithWriter(c.App.Writer).Printf("Tab %d forgotten\n", tabID)
			return nil
		},
	}
}

// resetCmd creates the reset command.
func resetCmd(remote *background.Remote) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Clear every cached shipment",
		Action: func(c *cli.Context) error {
			var ack background.AckReply
			if err := remote.Call(c.Context, background.KindResetSession, nil, &ack); err != nil {
				return outputError(err)
			}
			if !ack.OK {
				return outputError(replyError(ack.Error, ack.Code))
			}
			pterm.Success.WithWriter(c.App.Writer).Printf("%d cached shipments cleared\n", ack.Removed)
			return nil
		},
	}
}

// validateURLCmd creates the validate-url command.
func validateURLCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate-url",
		Usage:     "Check whether a page URL is a shipments page",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			id, ok := turvo.ShipmentIDFromURL(c.Args().First())
			if !ok || c.Args().First() == "" {
				return cli.Exit("Not a shipments page", 1)
			}
			fmt.Fprintf(c.App.Writer, "Valid shipments URL (ID: %s)\n", id)
			return nil
		},
	}
}

// Daemon helpers

// cachedRecord asks the daemon for the record cached under tabID.
func cachedRecord(ctx context.Context, remote *background.Remote, tabID int64) (*cache.Record, error) {
	var reply background.ShipmentReply
	if err := remote.Call(ctx, background.KindGetLastShipment, background.GetLastShipmentRequest{TabID: &tabID}, &reply); err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, replyError(reply.Error, reply.Code)
	}
	if reply.Data == nil {
		return nil, errors.NewNotFound(fmt.Sprintf("tab %d", tabID))
	}
	return reply.Data, nil
}

// listForTab fetches the shipment list related to the shipment cached
// under tabID. Returns the custom id used.
func listForTab(ctx context.Context, remote *background.Remote, tabID int64) (string, *background.FetchReply, error) {
	rec, err := cachedRecord(ctx, remote, tabID)
	if err != nil {
		return "", nil, err
	}
	customID := turvo.CustomID(rec.Data)
	if customID == "" {
		return "", nil, errors.NewPrecondition("custom_id not found in shipment data", "customId")
	}
	reply, err := fetchListByID(ctx, remote, customID)
	return customID, reply, err
}

func fetchListByID(ctx context.Context, remote *background.Remote, customID string) (*background.FetchReply, error) {
	var reply background.FetchReply
	m := background.FetchShipmentListRequest{CustomID: background.FlexString(customID)}
	if err := remote.Call(ctx, background.KindFetchShipmentList, m, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, replyError(reply.Error, reply.Code)
	}
	return &reply, nil
}

func fetchList(c *cli.Context, remote *background.Remote) (string, *background.FetchReply, error) {
	if customID := strings.TrimSpace(c.String("custom-id")); customID != "" {
		reply, err := fetchListByID(c.Context, remote, customID)
		return customID, reply, err
	}
	if c.IsSet("tab") {
		return listForTab(c.Context, remote, c.Int64("tab"))
	}
	return "", nil, errors.NewPrecondition("--custom-id or --tab is required", "custom-id", "tab")
}

// loadShipment reads the shipment named by --file, or the one cached for --tab.
func loadShipment(c *cli.Context, remote *background.Remote, cfg *config.Config, baseDir string) (string, turvo.Body, error) {
	if path := c.String("file"); path != "" {
		exportsDir, err := ops.DefaultExportsDir(baseDir)
		if err != nil {
			return "", turvo.Body{}, err
		}
		body, err := ops.LoadShipment(cfg, exportsDir, path)
		if err != nil {
			return "", turvo.Body{}, err
		}
		return "", body, nil
	}

	tabID, err := requireTab(c)
	if err != nil {
		return "", turvo.Body{}, err
	}
	rec, err := cachedRecord(c.Context, remote, tabID)
	if err != nil {
		return "", turvo.Body{}, err
	}
	return rec.ShipmentID, rec.Data, nil
}

func requireTab(c *cli.Context) (int64, error) {
	if !c.IsSet("tab") {
		return 0, errors.NewPrecondition("Missing tabId", "tab")
	}
	return c.Int64("tab"), nil
}

// replyError rebuilds the error carried by a {ok:false} reply.
func replyError(msg, code string) error {
	if code == "" {
		code = string(errors.ErrInternal)
	}
	return &errors.ShipError{Code: errors.ErrorCode(code), Message: msg}
}

func bodyOf(reply *background.FetchReply) turvo.Body {
	if reply.Data == nil {
		return turvo.TextBody("")
	}
	return *reply.Data
}

// Output helpers

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if shipErr, ok := err.(*errors.ShipError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", shipErr.Code, shipErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func printTokenInfo(w io.Writer, info observer.TokenInfo, token string) {
	if !info.Captured {
		pterm.Warning.WithWriter(w).Println("Not captured")
		return
	}
	rows := pterm.TableData{{"Property", "Value"}}
	if token != "" {
		rows = append(rows, []string{"Token", token})
	} else {
		rows = append(rows, []string{"Token", info.Masked})
	}
	if info.Subject != "" {
		rows = append(rows, []string{"Subject", info.Subject})
	}
	if info.Source != "" {
		rows = append(rows, []string{"Source", info.Source})
	}
	if info.CapturedAt != nil {
		rows = append(rows, []string{"Captured", info.CapturedAt.Format(time.RFC3339)})
	}
	if info.ExpiresAt != nil {
		rows = append(rows, []string{"Expires", info.ExpiresAt.Format(time.RFC3339)})
	}
	rows = append(rows, []string{"Expired", fmt.Sprintf("%t", info.Expired)})
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).WithWriter(w).Render()
}

func printSummary(w io.Writer, out *ops.SummaryOutput) error {
	f := out.Fields
	locations := summary.Placeholder
	if len(f.Locations) > 0 {
		locations = strings.Join(f.Locations, "\n")
	}
	rows := pterm.TableData{
		{"Field", "Value"},
		{"Shipment", summary.Display(out.ShipmentID)},
		{"Ship Locations", locations},
		{"Weight", summary.Display(joinUnit(f.Weight, f.WeightUnit))},
		{"Commodity", summary.Display(f.Commodity)},
		{"Temperature", summary.Display(joinUnit(f.Temperature, f.TemperatureUnit))},
		{"Services", summary.Display(f.Services)},
		{"Rate", summary.Display(f.Rate)},
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).WithWriter(w).Render()
}

func joinUnit(value, unit string) string {
	if !summary.Present(value) || !summary.Present(unit) {
		return value
	}
	return value + " " + unit
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
