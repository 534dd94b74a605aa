package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/service/storage/application"
	"shopflow/internal/service/storage/domain"
)

// StorageHandler 封装了 storage 服务的 HTTP 处理器
type StorageHandler struct {
	service *application.StorageService
}

// NewStorageHandler 创建一个新的 HTTP 处理器实例
func NewStorageHandler(service *application.StorageService) *StorageHandler {
	return &StorageHandler{service: service}
}

type productRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StorageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/storage/check", h.handleCheck)
	mux.HandleFunc("POST /api/v1/storage/check/order", h.handleCheckOrder)
	mux.HandleFunc("POST /api/v1/storage/find/order/out/{customerId}", h.handleFindOutOfStorage)
	mux.HandleFunc("POST /api/v1/storage/reserve", h.handleReserve)
	mux.HandleFunc("POST /api/v1/storage/restock/{quantity}", h.handleRestock)
	mux.HandleFunc("POST /api/v1/storage/save/{quantity}", h.handleSave)
	mux.HandleFunc("PUT /api/v1/storage/save/{quantity}", h.handleUpdate)
	mux.HandleFunc("GET /api/v1/storage/find/{id}", h.handleFind)
	mux.HandleFunc("DELETE /api/v1/storage/delete/{id}", h.handleDelete)
	mux.HandleFunc("GET /api/v1/storage/all", h.handleFindAll)
}

func (h *StorageHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	productID := r.URL.Query().Get("productId")
	required, err := strconv.Atoi(r.URL.Query().Get("requiredQuantity"))
	if productID == "" || err != nil {
		http.Error(w, "productId and requiredQuantity are required", http.StatusBadRequest)
		return
	}

	ok, err := h.service.IsInStorage(ctx, productID, required)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *StorageHandler) handleCheckOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var cart contract.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ok, err := h.service.IsOrderInStorage(ctx, cart)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *StorageHandler) handleFindOutOfStorage(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var cart contract.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	shortage, err := h.service.FindOutOfStorage(ctx, cart, r.PathValue("customerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shortage)
}

func (h *StorageHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req contract.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Reserve(ctx, req.OrderID, req.CustomerID, req.Cart)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *StorageHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	quantity, err := strconv.Atoi(r.PathValue("quantity"))
	if err != nil {
		http.Error(w, "quantity must be an integer", http.StatusBadRequest)
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	total, err := h.service.RaiseQuantity(ctx, req.ID, req.Name, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.StorageRecord{ProductID: req.ID, Quantity: total})
}

func (h *StorageHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	quantity, req, ok := decodeQuantityAndProduct(w, r)
	if !ok {
		return
	}
	record, err := h.service.SaveProduct(ctx, req.ID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *StorageHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	quantity, req, ok := decodeQuantityAndProduct(w, r)
	if !ok {
		return
	}
	record, err := h.service.UpdateProduct(ctx, req.ID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *StorageHandler) handleFind(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	record, err := h.service.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *StorageHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	if err := h.service.DeleteByID(ctx, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StorageHandler) handleFindAll(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	views, err := h.service.FindAllWithCatalog(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func decodeQuantityAndProduct(w http.ResponseWriter, r *http.Request) (int, productRequest, bool) {
	var req productRequest
	quantity, err := strconv.Atoi(r.PathValue("quantity"))
	if err != nil {
		http.Error(w, "quantity must be an integer", http.StatusBadRequest)
		return 0, req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return 0, req, false
	}
	return quantity, req, true
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var statusCode int
	switch {
	case errors.Is(err, contract.ErrInvalidCart),
		errors.Is(err, domain.ErrInvalidQuantity):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrProductExists),
		errors.Is(err, domain.ErrInsufficientStock):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrOrderMismatch):
		statusCode = http.StatusUnprocessableEntity
	default:
		statusCode = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("storage request failed")
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
