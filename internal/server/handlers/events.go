package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/agentstation/neowatch/internal/server/filter"
	"github.com/agentstation/neowatch/internal/server/response"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/logging"
	"github.com/agentstation/neowatch/pkg/special"
)

// SequenceHeader carries the stream sequence a listing is at least as new
// as. Stream notifications with a sequence at or below it are already
// reflected in the listing.
const SequenceHeader = "X-Stream-Sequence"

// HandleActiveEvents handles GET /api/v1/events/active.
// @Summary Active special events
// @Description Active events ordered by priority, then event time, then creation time
// @Tags events
// @Produce json
// @Success 200 {object} response.Response{data=[]special.Event}
// @Header 200 {integer} X-Stream-Sequence "Stream sequence the listing reflects"
// @Router /api/v1/events/active [get].
func (h *Handlers) HandleActiveEvents(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, special.Active())
}

// HandleListEvents handles GET /api/v1/events.
// @Summary List special events
// @Description Filtered listing in display order
// @Tags events
// @Produce json
// @Param active query bool false "Only active events"
// @Param type query string false "Event types (comma-separated)"
// @Param origin query string false "Origins (comma-separated)"
// @Param min_priority query string false "Minimum priority"
// @Success 200 {object} response.Response{data=[]special.Event}
// @Failure 400 {object} response.Response{error=response.Error}
// @Router /api/v1/events [get].
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := filter.ParseEventFilter(r)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	h.list(w, r, f)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, f special.Filter) {
	// The sequence is read before the store so the listing is at least as
	// new as every notification up to it.
	seq := h.hub.LastSequence()

	listing, ok := h.cache.Snapshot(seq, f)
	if !ok {
		var err error
		listing, err = h.events.Query(r.Context(), f)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if listing == nil {
			listing = []special.Event{}
		}
		h.cache.StoreSnapshot(seq, f, listing)
	}

	w.Header().Set(SequenceHeader, strconv.FormatUint(seq, 10))
	response.OK(w, listing)
}

// HandleGetEvent handles GET /api/v1/events/{id}.
// @Summary Get special event
// @Tags events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Response{data=special.Event}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /api/v1/events/{id} [get].
func (h *Handlers) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, e)
}

// HandleCreateEvent handles POST /api/v1/events.
// @Summary Create special event
// @Tags events
// @Accept json
// @Produce json
// @Param event body special.Fields true "Event fields"
// @Success 201 {object} response.Response{data=special.Event}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 401 {object} response.Response{error=response.Error}
// @Failure 403 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events [post].
func (h *Handlers) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var fields special.Fields
	if err := h.decode(w, r, &fields); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	e, err := h.events.Create(r.Context(), fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, e)
}

// HandleUpdateEvent handles PATCH /api/v1/events/{id}.
// @Summary Update special event
// @Description Partial update; omitted fields are unchanged, null clears velocity or metadata
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param patch body special.Patch true "Fields to change"
// @Success 200 {object} response.Response{data=special.Event}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 404 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events/{id} [patch].
func (h *Handlers) HandleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := logging.WithEventID(r.Context(), id)

	var patch special.Patch
	if err := h.decode(w, r, &patch); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if patch.IsEmpty() {
		response.InvalidArgument(w, "patch changes no fields", "")
		return
	}

	e, err := h.events.Update(ctx, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, e)
}

// HandleDeleteEvent handles DELETE /api/v1/events/{id}.
// @Summary Delete special event
// @Tags events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Response{data=special.Event}
// @Failure 404 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events/{id} [delete].
func (h *Handlers) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := h.events.Delete(logging.WithEventID(r.Context(), id), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, e)
}

// decode reads a JSON body, rejecting unknown fields and trailing data.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errors.NewValidationError("body", nil, fmt.Sprintf("exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return errors.NewValidationError("body", nil, "request body is empty")
		}
		// Enum and decimal parse failures arrive wrapped by encoding/json.
		var verr *errors.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return errors.NewValidationError("body", nil, err.Error())
	}
	if dec.More() {
		return errors.NewValidationError("body", nil, "unexpected data after JSON object")
	}
	return nil
}

// fail logs unexpected errors and writes the typed response.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.IsNotFound(err) && !errors.IsValidationError(err) && !errors.IsConflict(err) {
		logging.FromContext(r.Context()).Error().Err(err).Msg("Request failed")
	}
	response.ErrorFromType(w, err)
}
