package adapter

import (
	"context"
	"net/http"

	"shopflow/internal/contract"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/httpclient"
)

// CatalogHTTPAdapter 实现了 port.CatalogResolver 接口，只用于补齐邮件里的商品名称。
type CatalogHTTPAdapter struct {
	client *httpclient.Client
}

func NewCatalogHTTPAdapter(client *httpclient.Client) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client}
}

func (a *CatalogHTTPAdapter) FindProducts(ctx context.Context, productIDs []string) (map[string]contract.Product, error) {
	var products []contract.Product
	err := a.client.DoJSON(ctx, http.MethodPost, constants.ProductService, constants.ProductNameIdentifierPath, nil, productIDs, &products)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]contract.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}
