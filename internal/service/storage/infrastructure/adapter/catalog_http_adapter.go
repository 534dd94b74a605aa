package adapter

import (
	"context"
	"net/http"

	"shopflow/internal/contract"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/httpclient"
)

// CatalogHTTPAdapter 实现了 port.CatalogResolver 接口。
type CatalogHTTPAdapter struct {
	client *httpclient.Client
}

func NewCatalogHTTPAdapter(client *httpclient.Client) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client}
}

// FindProducts 批量查询商品信息，目录中不存在的商品不会出现在结果里
func (a *CatalogHTTPAdapter) FindProducts(ctx context.Context, productIDs []string) (map[string]contract.Product, error) {
	result := make(map[string]contract.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	var products []contract.Product
	err := a.client.DoJSON(ctx, http.MethodPost, constants.ProductService, constants.ProductNameIdentifierPath, nil, productIDs, &products)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}
