package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/email"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/logging"
	"github.com/hpungsan/shiplens/internal/ops"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// Handlers contains HTTP route handlers for the daemon.
type Handlers struct {
	bg       *background.Background
	cfg      *config.Config
	renderer *Renderer
	log      *logging.Logger
	now      func() time.Time
}

var fieldLabels = map[email.Field]string{
	email.Locations:       "Ship Locations",
	email.Commodity:       "Commodity",
	email.Weight:          "Weight",
	email.WeightUnit:      "Weight unit",
	email.Temperature:     "Temperature",
	email.TemperatureUnit: "Temperature unit",
	email.Services:        "Services",
	email.Rate:            "Rate",
}

var fieldParents = map[email.Field]email.Field{
	email.WeightUnit:      email.Weight,
	email.TemperatureUnit: email.Temperature,
}

// Extension endpoints

// HandleRPC handles POST /rpc: one background message envelope.
func (h *Handlers) HandleRPC(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	reply, err := h.bg.Dispatch(r.Context(), raw)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, reply)
}

// HandleObserve handles POST /observe: the headers of one outbound request.
func (h *Handlers) HandleObserve(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	var m background.ObserveRequest
	if err := json.Unmarshal(raw, &m); err != nil {
		renderAPIError(w, errors.NewInvalidRequest(fmt.Sprintf("invalid observe request: %v", err)))
		return
	}
	renderJSON(w, http.StatusOK, background.ObserveReply{OK: true, Captured: h.bg.Observe(m)})
}

// HandleTabLoading handles POST /tabs/{id}/loading: a tab started navigating.
func (h *Handlers) HandleTabLoading(w http.ResponseWriter, r *http.Request) {
	tabID, err := parseTabID(r.PathValue("id"))
	if err != nil {
		renderAPIError(w, err)
		return
	}
	if err := h.bg.TabLoading(r.Context(), &tabID); err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, background.AckReply{OK: true})
}

// HandleResetSession handles POST /session/reset: a new browser session began.
func (h *Handlers) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	n, err := h.bg.ResetSession(r.Context())
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, background.AckReply{OK: true, Removed: n})
}

// Pages

// HandleIndex handles GET /: the cached tabs and the token state.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	records, err := h.bg.Cache().List(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "index", IndexPageData{
		PageData: PageData{
			Title:   "Cached tabs",
			Version: h.renderer.version,
			Nav:     "tabs",
		},
		Records: records,
		Token:   h.bg.Observer().Info(),
		Origin:  h.cfg.Origin,
	})
}

// HandlePopup handles GET /popup: the popup for one tab and page URL. A
// valid shipments URL with a captured token triggers a fresh fetch; the
// tab's cached record is shown when the fetch cannot be used.
func (h *Handlers) HandlePopup(w http.ResponseWriter, r *http.Request) {
	data, tabID, err := h.newPopup(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !data.Token.Captured {
		h.renderer.renderPage(w, r, "popup", data)
		return
	}

	var cached *cache.Record
	if tabID != nil {
		if cached, err = h.bg.Cache().Get(r.Context(), *tabID); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}

	if data.Valid {
		if h.fetchInto(r, &data, tabID, "") {
			h.renderer.renderPage(w, r, "popup", data)
			return
		}
	}
	if cached != nil {
		h.showRecord(&data, cached, nil)
	}
	h.renderer.renderPage(w, r, "popup", data)
}

// HandlePopupEmail handles POST /popup/email: re-renders the email draft
// of the tab's cached shipment from the submitted field checkboxes.
func (h *Handlers) HandlePopupEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	data, tabID, err := h.newPopup(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if tabID == nil {
		h.renderer.renderError(w, r, errors.NewPrecondition("Missing tabId", "tab"))
		return
	}

	rec, err := h.bg.RequireShipment(r.Context(), *tabID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	checked := r.Form["field"]
	set := make(map[string]bool, len(email.AllFields))
	for _, f := range email.AllFields {
		set[string(f)] = lo.Contains(checked, string(f))
	}
	if err := h.showRecord(&data, rec, set); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.renderer.renderBlock(w, http.StatusOK, "popup", "email", data)
		return
	}
	h.renderer.renderPage(w, r, "popup", data)
}

// HandlePopupRefresh handles POST /popup/refresh: a cache-busting fetch.
// With bypass=1 the tab's cache entry is evicted first, so a failed fetch
// has no earlier record to fall back to.
func (h *Handlers) HandlePopupRefresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	data, tabID, err := h.newPopup(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if tabID == nil {
		h.renderer.renderError(w, r, errors.NewPrecondition("Missing tabId", "tab"))
		return
	}
	if !data.Valid {
		h.renderer.renderError(w, r, errors.NewPrecondition("Missing shipmentId", "shipmentId"))
		return
	}

	if parseBool(r.FormValue("bypass")) {
		if err := h.bg.TabLoading(r.Context(), tabID); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}

	cached, err := h.bg.Cache().Get(r.Context(), *tabID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	bust := strconv.FormatInt(h.now().UnixMilli(), 10)
	if !h.fetchInto(r, &data, tabID, bust) && cached != nil {
		h.showRecord(&data, cached, nil)
	}
	h.renderer.renderPage(w, r, "popup", data)
}

// Downloads

// HandleDownloadShipment handles GET /tabs/{id}/shipment.json.
func (h *Handlers) HandleDownloadShipment(w http.ResponseWriter, r *http.Request) {
	tabID, err := parseTabID(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	rec, err := h.bg.RequireShipment(r.Context(), tabID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.download(w, r, turvo.ShipmentFilename(ops.SanitizeForFilename(rec.ShipmentID)), rec.Data)
}

// HandleDownloadShipmentList handles GET /tabs/{id}/shipment-list.json:
// the shipments sharing the custom id of the tab's cached shipment.
func (h *Handlers) HandleDownloadShipmentList(w http.ResponseWriter, r *http.Request) {
	tabID, err := parseTabID(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	customID, res, err := h.bg.ListForTab(r.Context(), tabID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !res.OK {
		h.renderer.renderError(w, r, errors.NewUpstream(fmt.Errorf("shipment list request returned status %d", res.Status)))
		return
	}
	name := turvo.ShipmentListFilename(ops.SanitizeForFilename(customID), h.now().UnixMilli())
	h.download(w, r, name, res.Data)
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, name string, body turvo.Body) {
	payload, err := ops.FormatPayload(body)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// Popup helpers

// newPopup reads tab, url and dev from the query or form and fills in the
// URL validation and token state.
func (h *Handlers) newPopup(r *http.Request) (PopupPageData, *int64, error) {
	if err := r.ParseForm(); err != nil {
		return PopupPageData{}, nil, errors.NewInvalidRequest("invalid form data")
	}

	var tabID *int64
	if s := strings.TrimSpace(r.FormValue("tab")); s != "" {
		id, err := parseTabID(s)
		if err != nil {
			return PopupPageData{}, nil, err
		}
		tabID = &id
	}

	data := PopupPageData{
		PageData: PageData{
			Title:   "Shipment",
			Version: h.renderer.version,
			Nav:     "popup",
		},
		URL:   r.FormValue("url"),
		Dev:   parseBool(r.FormValue("dev")),
		Token: h.bg.Observer().Info(),
	}
	if tabID != nil {
		data.Tab = strconv.FormatInt(*tabID, 10)
	}

	if id, ok := turvo.ShipmentIDFromURL(data.URL); ok && data.URL != "" {
		data.ShipmentID = id
		data.Valid = true
		data.Validation = fmt.Sprintf("Valid shipments URL (ID: %s)", id)
	} else {
		data.Validation = "Not a shipments page"
	}
	return data, tabID, nil
}

// fetchInto fetches data.ShipmentID for tabID and shows the response.
// Reports false, with data.Notice set, when there is nothing to show.
func (h *Handlers) fetchInto(r *http.Request, data *PopupPageData, tabID *int64, bust string) bool {
	res, err := h.bg.FetchShipment(r.Context(), background.FetchShipmentRequest{
		ShipmentID: background.FlexString(data.ShipmentID),
		QueryTypes: h.cfg.QueryTypes,
		Event:      h.cfg.Event,
		TabID:      tabID,
		BustTS:     background.FlexString(bust),
	})
	if err != nil {
		data.Notice = errors.Message(err)
		return false
	}
	if !res.OK {
		data.Notice = fmt.Sprintf("Request failed with status %d", res.Status)
		return false
	}

	data.Source = "fetch"
	data.Status = res.Status
	data.CapturedAt = h.now().UnixMilli()
	h.showBody(data, data.ShipmentID, res.Data, nil)
	return true
}

func (h *Handlers) showRecord(data *PopupPageData, rec *cache.Record, set map[string]bool) error {
	data.Source = "cache"
	data.CapturedAt = rec.CapturedAt
	if data.ShipmentID == "" {
		data.ShipmentID = rec.ShipmentID
	}
	return h.showBody(data, rec.ShipmentID, rec.Data, set)
}

// showBody fills in the summary, the field checkboxes and the email draft.
func (h *Handlers) showBody(data *PopupPageData, shipmentID string, body turvo.Body, set map[string]bool) error {
	sum := ops.Summarize(shipmentID, body)
	out, err := ops.ComposeEmail(sum.Fields, ops.EmailInput{Set: set})
	if err != nil {
		return err
	}

	data.Summary = sum
	data.SummaryHTML = renderMarkdown(sum.Markdown)
	data.Email = out.Text

	available := email.DefaultToggles(sum.Fields)
	data.Toggles = lo.Map(email.AllFields, func(f email.Field, _ int) FieldToggle {
		return FieldToggle{
			Field:     f,
			Label:     fieldLabels[f],
			On:        out.Toggles.On(f),
			Available: available.On(f),
			Parent:    fieldParents[f],
		}
	})

	if data.Dev {
		if raw, err := ops.FormatPayload(body); err == nil {
			data.Raw = string(raw)
		} else {
			h.log.Warnf("dev view of shipment %s: %v", shipmentID, err)
		}
	}
	return nil
}

// readBody reads a request body up to maxMessageBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("read request body: %v", err))
	}
	return raw, nil
}

// parseTabID parses a tab id path or form value.
func parseTabID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.NewPrecondition("Missing tabId", "tabId")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid tab id %q", s))
	}
	return id, nil
}

// parseBool parses a boolean query or form value.
func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "on"
}
