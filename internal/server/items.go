package server

import (
	"errors"
	"net/http"

	"github.com/ggicci/httpin"
	"github.com/ggicci/httpin/core"
	"github.com/go-chi/chi/v5"

	"github.com/mohans/taskx"
	"github.com/mohans/taskx/codec"
)

// input decodes requests into v. Anything httpin rejects, such as a body
// that is not JSON or a value with an unknown tag, is the caller's fault.
func input(v any) func(http.Handler) http.Handler {
	return httpin.NewInput(v, core.WithErrorHandler(badRequest))
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func submitItem(sm chi.Router, rt *runtime) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		req := r.
			Context().
			Value(httpin.Input).(*SubmitItemRequest)

		if req.Body == nil || req.Body.Callable == "" {
			http.Error(w, "callable is required", http.StatusBadRequest)
			return
		}

		item, err := rt.queue(req.Queue).EnqueueValues(r.Context(), req.Body.Callable, req.Body.Args)
		if errors.Is(err, codec.ErrCorruptEncoding) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			rt.logger.
				With("err", err).
				With("queue", req.Queue).
				With("met", "server.submitItem").
				Error("failed to enqueue item")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
		if err := encode(w, SubmitItemResponse{ID: item.ID}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	sm.
		With(input(SubmitItemRequest{})).
		Post("/api/v1/queues/{queue}/items", handler)
}

func getQueue(sm chi.Router, rt *runtime) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		req := r.
			Context().
			Value(httpin.Input).(*GetQueueRequest)

		n, err := rt.queue(req.Queue).Len(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := encode(w, GetQueueResponse{Queue: req.Queue, Pending: n}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	sm.
		With(input(GetQueueRequest{})).
		Get("/api/v1/queues/{queue}", handler)
}

func getItem(sm chi.Router, rt *runtime) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		req := r.
			Context().
			Value(httpin.Input).(*GetItemRequest)

		if rt.opts.Store == nil {
			http.Error(w, "no lifecycle store configured", http.StatusNotImplemented)
			return
		}

		rec, err := rt.opts.Store.GetByID(r.Context(), req.ID)
		if errors.Is(err, taskx.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := ItemInfo{
			ID:         rec.ID,
			Callable:   rec.Callable,
			Queue:      rec.Queue,
			Args:       rec.ArgsJSON,
			Status:     string(rec.Status),
			Error:      rec.ErrorMsg,
			CreatedAt:  rec.CreatedAt,
			EnqueuedAt: rec.EnqueuedAt,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		}
		if err := encode(w, resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	sm.
		With(input(GetItemRequest{})).
		Get("/api/v1/items/{id}", handler)
}
