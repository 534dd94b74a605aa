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

// CustomerHTTPAdapter 实现了 port.CustomerDirectory 接口。
type CustomerHTTPAdapter struct {
	client *httpclient.Client
}

func NewCustomerHTTPAdapter(client *httpclient.Client) *CustomerHTTPAdapter {
	return &CustomerHTTPAdapter{client: client}
}

func (a *CustomerHTTPAdapter) FindContact(ctx context.Context, customerID string) (*contract.Customer, error) {
	var customer contract.Customer
	err := a.client.DoJSON(ctx, http.MethodGet, constants.CustomerService, constants.CustomerContactPath+customerID, nil, nil, &customer)
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (a *CustomerHTTPAdapter) CleanCart(ctx context.Context, customerID string) error {
	return a.client.DoJSON(ctx, http.MethodPut, constants.CustomerService, constants.CustomerCleanCartPath+customerID, nil, nil, nil)
}
