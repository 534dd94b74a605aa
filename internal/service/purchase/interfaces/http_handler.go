package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/service/purchase/application"
	"shopflow/internal/service/purchase/domain"
)

// PurchaseHandler 封装了 purchase 服务的 HTTP 处理器
type PurchaseHandler struct {
	service *application.PurchaseService
}

func NewPurchaseHandler(service *application.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PurchaseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+constants.PurchaseBasePath+"/operation", h.handlePurchase)
	mux.HandleFunc("POST "+constants.PurchaseBasePath+"/mail/send", h.handleSendMail)
}

func (h *PurchaseHandler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var order contract.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status, err := h.service.Purchase(ctx, order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

func (h *PurchaseHandler) handleSendMail(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var order contract.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.SendPurchaseMail(ctx, order); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// writeError 根据错误类型返回不同的 HTTP 状态码。缺货不是错误，它以 200 + isOrderInStorage=false 返回。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var unconfirmed *domain.UnconfirmedOrderError
	if errors.As(err, &unconfirmed) {
		// 库存已预占，调用方需要带着 orderId 重试
		logger.Ctx(r.Context()).Error().Err(err).Str("order_id", unconfirmed.OrderID).Msg("purchase left unconfirmed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(unconfirmedResponse{OrderID: unconfirmed.OrderID, Error: err.Error()})
		return
	}

	var statusCode int
	switch {
	case errors.Is(err, contract.ErrInvalidCart):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrReservationConflict),
		errors.Is(err, domain.ErrOrderIDReused):
		statusCode = http.StatusConflict
	default:
		statusCode = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("purchase request failed")
	}
	http.Error(w, err.Error(), statusCode)
}

type unconfirmedResponse struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}
