package adapter

import (
	"context"
	"fmt"
	"net/http"

	"shopflow/internal/contract"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/httpclient"
	"shopflow/internal/service/purchase/domain"
)

// StorageHTTPAdapter 实现了 port.StorageGateway 接口。
type StorageHTTPAdapter struct {
	client *httpclient.Client
}

func NewStorageHTTPAdapter(client *httpclient.Client) *StorageHTTPAdapter {
	return &StorageHTTPAdapter{client: client}
}

func (a *StorageHTTPAdapter) IsOrderInStorage(ctx context.Context, cart contract.Cart) (bool, error) {
	var ok bool
	err := a.client.DoJSON(ctx, http.MethodPost, constants.StorageService, constants.StorageCheckOrderPath, nil, cart, &ok)
	if err != nil {
		return false, fmt.Errorf("check order in storage: %w", err)
	}
	return ok, nil
}

func (a *StorageHTTPAdapter) FindOutOfStorage(ctx context.Context, cart contract.Cart, customerID string) (map[string]int, error) {
	var shortage map[string]int
	err := a.client.DoJSON(ctx, http.MethodPost, constants.StorageService, constants.StorageFindOutPath+customerID, nil, cart, &shortage)
	if err != nil {
		return nil, fmt.Errorf("find out of storage: %w", err)
	}
	return shortage, nil
}

// Reserve 把 storage 的 409 转换为 domain.ErrReservationRejected，422 转换为 domain.ErrOrderIDReused
func (a *StorageHTTPAdapter) Reserve(ctx context.Context, orderID, customerID string, cart contract.Cart) (contract.ReserveResult, error) {
	req := contract.ReserveRequest{OrderID: orderID, CustomerID: customerID, Cart: cart}
	var result contract.ReserveResult
	err := a.client.DoJSON(ctx, http.MethodPost, constants.StorageService, constants.StorageReservePath, nil, req, &result)
	switch {
	case httpclient.IsStatus(err, http.StatusConflict):
		return result, fmt.Errorf("%w: %v", domain.ErrReservationRejected, err)
	case httpclient.IsStatus(err, http.StatusUnprocessableEntity):
		return result, fmt.Errorf("%w: %v", domain.ErrOrderIDReused, err)
	case err != nil:
		return result, fmt.Errorf("reserve order %s: %w", orderID, err)
	}
	return result, nil
}
