package adapter

import (
	"context"
	"net/http"

	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/httpclient"
)

// CustomerHTTPAdapter 实现了 port.CustomerNotifier 接口。
type CustomerHTTPAdapter struct {
	client *httpclient.Client
}

func NewCustomerHTTPAdapter(client *httpclient.Client) *CustomerHTTPAdapter {
	return &CustomerHTTPAdapter{client: client}
}

// NotifyRestock 把 customerId -> 商品名 交给客户服务，由它给客户发补货邮件
func (a *CustomerHTTPAdapter) NotifyRestock(ctx context.Context, notices map[string]string) error {
	if len(notices) == 0 {
		return nil
	}
	return a.client.DoJSON(ctx, http.MethodPut, constants.CustomerService, constants.CustomerIdentifyPath, nil, notices, nil)
}
