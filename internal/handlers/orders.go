package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TwigBush/ordergate/internal/audit"
	"github.com/TwigBush/ordergate/internal/httpx"
	"github.com/TwigBush/ordergate/internal/mw"
	"github.com/TwigBush/ordergate/internal/orders"
	"github.com/TwigBush/ordergate/internal/policy"
	"github.com/TwigBush/ordergate/internal/trace"
)

// MsgAccessDenied is the body clients see on a denied operation.
const MsgAccessDenied = "Requested method is not allowed."

type OrdersHandler struct {
	store  orders.Store
	policy policy.Checker
	audit  audit.Publisher
}

func NewOrdersHandler(store orders.Store, checker policy.Checker, pub audit.Publisher) *OrdersHandler {
	if pub == nil {
		pub = audit.Discard{}
	}
	return &OrdersHandler{store: store, policy: checker, audit: pub}
}

// authorize asks the policy about the current request and writes the 403
// itself on Deny.
func (h *OrdersHandler) authorize(w http.ResponseWriter, r *http.Request, op policy.Operation) (policy.Predicate, bool) {
	rc := mw.RequestContextFrom(r)
	m := policy.ParseMethod(r.Method)

	var d policy.Decision
	if m == policy.MethodGet {
		d = h.policy.DecideForRead(rc.Caller, rc.Cart)
	} else {
		d = h.policy.DecideForWrite(rc.Caller, m, op)
	}

	tid := trace.From(r.Context())
	slog.Debug("decision", "trace", tid, "op", op, "caller", rc.Caller.String(), "rule", d.Rule, "decision", d.String())
	h.audit.Publish(audit.NewEvent(tid, m, op, rc.Caller, d))

	if !d.Allowed() {
		httpx.WriteError(w, http.StatusForbidden, MsgAccessDenied)
		return policy.Predicate{}, false
	}
	return d.Predicate, true
}

func (h *OrdersHandler) Get(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := h.authorize(w, r, op)
		if !ok {
			return
		}
		o, err := h.store.Get(r.Context(), chi.URLParam(r, "token"), filter)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, o)
	}
}

// listDecision scopes the order collection. The read policy only covers
// single orders reached by token, so it never filters the collection: API
// admins see every order, shop users their own, everyone else nothing.
func listDecision(c policy.Caller) policy.Decision {
	switch {
	case c.Kind == policy.KindAdminUser && c.Roles.Has(policy.RoleAPIAccess):
		d := policy.Allow(policy.True())
		d.Rule = "list.admin_user"
		return d
	case c.Kind == policy.KindShopUser:
		d := policy.Allow(policy.CustomerEquals(c.CustomerID))
		d.Rule = "list.shop_user"
		return d
	}
	d := policy.Deny()
	d.Rule = "list.default"
	return d
}

func (h *OrdersHandler) List(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := mw.RequestContextFrom(r)
		d := listDecision(rc.Caller)

		tid := trace.From(r.Context())
		slog.Debug("decision", "trace", tid, "op", op, "caller", rc.Caller.String(), "rule", d.Rule, "decision", d.String())
		h.audit.Publish(audit.NewEvent(tid, policy.MethodGet, op, rc.Caller, d))

		if !d.Allowed() {
			httpx.WriteError(w, http.StatusForbidden, MsgAccessDenied)
			return
		}
		list, err := h.store.List(r.Context(), d.Predicate)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": list, "total": len(list)})
	}
}

type createCartRequest struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
}

// CreateCart picks up a new cart. Collection operations are not filtered;
// the owner comes from the caller: a shop user owns it, a correlated visitor
// gets the correlated customer, an API admin may name one, everyone else
// creates a guest cart.
func (h *OrdersHandler) CreateCart(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCartRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		rc := mw.RequestContextFrom(r)
		o := &orders.Order{}
		switch {
		case rc.Caller.Kind == policy.KindShopUser:
			id := rc.Caller.CustomerID
			o.CustomerID = &id
		case rc.Caller.Kind == policy.KindAdminUser && rc.Caller.Roles.Has(policy.RoleAPIAccess):
			if req.CustomerID != nil {
				id := policy.CustomerID(*req.CustomerID)
				o.CustomerID = &id
			}
		case rc.Cart.Valid:
			id := rc.Cart.ID
			o.CustomerID = &id
		default:
			if id, ok := rc.Caller.CorrelatedCustomer(); ok {
				o.CustomerID = &id
			}
		}

		created, err := h.store.Create(r.Context(), o)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		w.Header().Set("Location", httpx.BaseURL(r)+"/orders/"+created.Token)
		httpx.WriteJSON(w, http.StatusCreated, created)
	}
}

type addItemRequest struct {
	Variant  string `json:"variant"`
	Quantity int    `json:"quantity"`
}

func (h *OrdersHandler) AddItem(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := h.authorize(w, r, op)
		if !ok {
			return
		}
		var req addItemRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		h.update(w, r, filter, http.StatusCreated, func(o *orders.Order) error {
			_, err := o.AddItem(req.Variant, req.Quantity)
			return err
		})
	}
}

func (h *OrdersHandler) RemoveItem(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := h.authorize(w, r, op)
		if !ok {
			return
		}
		itemID := chi.URLParam(r, "itemId")
		h.update(w, r, filter, http.StatusOK, func(o *orders.Order) error {
			return o.RemoveItem(itemID)
		})
	}
}

type selectPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *OrdersHandler) SelectPaymentMethod(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := h.authorize(w, r, op)
		if !ok {
			return
		}
		var req selectPaymentRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.update(w, r, filter, http.StatusOK, func(o *orders.Order) error {
			return o.SelectPaymentMethod(req.PaymentMethod)
		})
	}
}

func (h *OrdersHandler) Complete(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := h.authorize(w, r, op)
		if !ok {
			return
		}
		h.update(w, r, filter, http.StatusOK, func(o *orders.Order) error {
			return o.Complete()
		})
	}
}

func (h *OrdersHandler) Delete(op policy.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := h.authorize(w, r, op)
		if !ok {
			return
		}
		if err := h.store.Delete(r.Context(), chi.URLParam(r, "token"), filter); err != nil {
			writeStoreError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *OrdersHandler) update(w http.ResponseWriter, r *http.Request, filter policy.Predicate, status int, mutate func(*orders.Order) error) {
	o, err := h.store.Update(r.Context(), chi.URLParam(r, "token"), filter, mutate)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, status, o)
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, orders.ErrItemNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Not Found")
	case errors.Is(err, orders.ErrInvalidState), errors.Is(err, orders.ErrEmptyCart):
		httpx.WriteError(w, http.StatusConflict, httpx.SafeErrMsg(err))
	case errors.Is(err, orders.ErrInvalidQuantity), errors.Is(err, orders.ErrMissingReference),
		errors.Is(err, orders.ErrUnknownCustomer):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.SafeErrMsg(err))
	default:
		slog.Error("order store", "trace", trace.From(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error")
	}
}
